package mbs

import (
	"github.com/pkg/errors"
)

// FixedSlider keeps a point on the fixed line through A and B:
//
//	Φ = (Bx-Ax)(y-Ay) - (By-Ay)(x-Ax)
type FixedSlider struct {
	constraintCommon
	A, B Vec2
}

func NewFixedSlider(p int, a, b Vec2) *FixedSlider {
	return &FixedSlider{constraintCommon: newCommon(p), A: a, B: b}
}

func (c *FixedSlider) BuildSparseStructures(m *AssembledModel) error {
	if c.A == c.B {
		return errors.New("mbs: fixed slider line has coincident ends")
	}
	return c.buildCommon(m, 1)
}

func (c *FixedSlider) Update(m *AssembledModel) {
	p := c.coords(m, 0)
	lx, ly := c.B.X-c.A.X, c.B.Y-c.A.Y

	row := c.rows[0]
	m.phi[row] = lx*(p.Y-c.A.Y) - ly*(p.X-c.A.X)
	m.dotPhi[row] = lx*p.DotY - ly*p.DotX

	c.setJacob(m, 0, 0, Vec2{-ly, lx}, Vec2{}, Vec2{})
}

func (c *FixedSlider) Clone() Constraint {
	return &FixedSlider{constraintCommon: c.cloneCommon(), A: c.A, B: c.B}
}

// MobileSlider keeps point P on the line through the moving points R0, R1:
//
//	Φ = (r1x-r0x)(py-r0y) - (r1y-r0y)(px-r0x)
type MobileSlider struct {
	constraintCommon
}

func NewMobileSlider(p, r0, r1 int) *MobileSlider {
	return &MobileSlider{constraintCommon: newCommon(p, r0, r1)}
}

func (c *MobileSlider) BuildSparseStructures(m *AssembledModel) error {
	if len(c.points) > 0 && m.IsFixed(c.points[0]) {
		return errors.Wrapf(ErrFixedPoint, "mobile slider point %d (%s)", c.points[0], m.PointName(c.points[0]))
	}
	return c.buildCommon(m, 1)
}

func (c *MobileSlider) Update(m *AssembledModel) {
	p, r0, r1 := c.coords(m, 0), c.coords(m, 1), c.coords(m, 2)

	row := c.rows[0]
	m.phi[row] = (r1.X-r0.X)*(p.Y-r0.Y) - (r1.Y-r0.Y)*(p.X-r0.X)
	m.dotPhi[row] = (r1.DotX-r0.DotX)*(p.Y-r0.Y) +
		(r1.X-r0.X)*(p.DotY-r0.DotY) -
		(r1.DotY-r0.DotY)*(p.X-r0.X) -
		(r1.Y-r0.Y)*(p.DotX-r0.DotX)

	// Φ is bilinear, so Φ̇_q and ∂(Φ_q q̇)/∂q coincide.
	dp := Vec2{r0.DotY - r1.DotY, r1.DotX - r0.DotX}
	dr0 := Vec2{r1.DotY - p.DotY, p.DotX - r1.DotX}
	dr1 := Vec2{p.DotY - r0.DotY, r0.DotX - p.DotX}

	c.setJacob(m, 0, 0, Vec2{r0.Y - r1.Y, r1.X - r0.X}, dp, dp)
	c.setJacob(m, 0, 1, Vec2{r1.Y - p.Y, p.X - r1.X}, dr0, dr0)
	c.setJacob(m, 0, 2, Vec2{p.Y - r0.Y, r0.X - p.X}, dr1, dr1)
}

func (c *MobileSlider) Clone() Constraint {
	return &MobileSlider{constraintCommon: c.cloneCommon()}
}
