package mbs

import (
	"math"

	"github.com/pkg/errors"
)

// RelativeAngleAbsolute ties an extra coordinate θ to the absolute angle of
// the segment P0→P1 measured from +X:
//
//	Φ = Δx·sinθ - Δy·cosθ
//
// The form is smooth everywhere and has no branch cut, but it is also
// satisfied by θ+π, so θ must start on the intended branch.
type RelativeAngleAbsolute struct {
	constraintCommon
	// Coord is the extra coordinate id returned by AddCoordinate.
	Coord int

	col      int
	thetaCol [3]int
}

func NewRelativeAngleAbsolute(p0, p1, coord int) *RelativeAngleAbsolute {
	return &RelativeAngleAbsolute{constraintCommon: newCommon(p0, p1), Coord: coord}
}

// CoordIndex returns the q index of θ once the constraint is registered.
func (c *RelativeAngleAbsolute) CoordIndex() int { return c.col }

func (c *RelativeAngleAbsolute) BuildSparseStructures(m *AssembledModel) error {
	col, err := m.ExtraCoordinateIndex(c.Coord)
	if err != nil {
		return errors.Wrap(err, "relative angle")
	}
	if err := c.buildCommon(m, 1); err != nil {
		return err
	}
	c.col = col
	row := c.rows[0]
	c.thetaCol = [3]int{
		m.phiQ.Slot(row, col),
		m.dotPhiQ.Slot(row, col),
		m.dPhiqdq.Slot(row, col),
	}
	return nil
}

func (c *RelativeAngleAbsolute) Update(m *AssembledModel) {
	p0, p1 := c.coords(m, 0), c.coords(m, 1)
	theta, dtheta := m.q[c.col], m.dq[c.col]
	s, co := math.Sincos(theta)

	dx, dy := p1.X-p0.X, p1.Y-p0.Y
	ddx, ddy := p1.DotX-p0.DotX, p1.DotY-p0.DotY

	row := c.rows[0]
	m.phi[row] = dx*s - dy*co
	m.dotPhi[row] = ddx*s + dx*co*dtheta - ddy*co + dy*s*dtheta

	d := Vec2{s, -co}
	dd := Vec2{co * dtheta, s * dtheta}
	c.setJacob(m, 0, 0, d.Scale(-1), dd.Scale(-1), dd.Scale(-1))
	c.setJacob(m, 0, 1, d, dd, dd)

	dTheta := dx*co + dy*s
	dotDTheta := ddx*co - dx*s*dtheta + ddy*s + dy*co*dtheta
	m.phiQ.Set(c.thetaCol[0], dTheta)
	m.dotPhiQ.Set(c.thetaCol[1], dotDTheta)
	m.dPhiqdq.Set(c.thetaCol[2], dotDTheta)
}

func (c *RelativeAngleAbsolute) Clone() Constraint {
	return &RelativeAngleAbsolute{constraintCommon: c.cloneCommon(), Coord: c.Coord}
}
