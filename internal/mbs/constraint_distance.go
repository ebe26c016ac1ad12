package mbs

// ConstantDistance keeps two points at a fixed distance:
//
//	Φ = (x1-x0)² + (y1-y0)² - L²
type ConstantDistance struct {
	constraintCommon
	Length float64
}

func NewConstantDistance(p0, p1 int, length float64) *ConstantDistance {
	return &ConstantDistance{constraintCommon: newCommon(p0, p1), Length: length}
}

func (c *ConstantDistance) BuildSparseStructures(m *AssembledModel) error {
	return c.buildCommon(m, 1)
}

func (c *ConstantDistance) Update(m *AssembledModel) {
	p0, p1 := c.coords(m, 0), c.coords(m, 1)
	dx, dy := p1.X-p0.X, p1.Y-p0.Y
	ddx, ddy := p1.DotX-p0.DotX, p1.DotY-p0.DotY

	row := c.rows[0]
	m.phi[row] = dx*dx + dy*dy - c.Length*c.Length
	m.dotPhi[row] = 2 * (dx*ddx + dy*ddy)

	d := Vec2{2 * dx, 2 * dy}
	dd := Vec2{2 * ddx, 2 * ddy}
	c.setJacob(m, 0, 0, d.Scale(-1), dd.Scale(-1), dd.Scale(-1))
	c.setJacob(m, 0, 1, d, dd, dd)
}

func (c *ConstantDistance) Clone() Constraint {
	return &ConstantDistance{constraintCommon: c.cloneCommon(), Length: c.Length}
}
