package mbs

import (
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

// PointDef is a mechanism point as declared in a ModelDefinition.
type PointDef struct {
	Name  string
	X, Y  float64
	Fixed bool
}

// PointRef is a read-only view of a point at the time it was taken. Fixed
// points report their stored position and zero derivatives.
type PointRef struct {
	X, Y         float64
	DotX, DotY   float64
	DDotX, DDotY float64
	Fixed        bool
}

// Vec2 is a planar vector.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2        { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2        { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(f float64) Vec2   { return Vec2{v.X * f, v.Y * f} }
func (v Vec2) Dot(o Vec2) float64     { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Perp() Vec2             { return Vec2{-v.Y, v.X} }
func (p PointRef) Position() Vec2     { return Vec2{p.X, p.Y} }
func (p PointRef) Velocity() Vec2     { return Vec2{p.DotX, p.DotY} }
func (p PointRef) Acceleration() Vec2 { return Vec2{p.DDotX, p.DDotY} }

type pointInfo struct {
	name   string
	fixed  bool
	x, y   float64
	ix, iy int
}

// NumPoints returns the number of points, fixed or variable.
func (m *AssembledModel) NumPoints() int {
	return len(m.points)
}

// PointName returns the declared name of point i.
func (m *AssembledModel) PointName(i int) string {
	if i < 0 || i >= len(m.points) {
		return ""
	}
	return m.points[i].name
}

// PointIndices returns the q indices of point i. ok is false for fixed or
// unknown points.
func (m *AssembledModel) PointIndices(i int) (ix, iy int, ok bool) {
	if i < 0 || i >= len(m.points) || m.points[i].fixed {
		return -1, -1, false
	}
	return m.points[i].ix, m.points[i].iy, true
}

// IsFixed reports whether point i is fixed.
func (m *AssembledModel) IsFixed(i int) bool {
	return i >= 0 && i < len(m.points) && m.points[i].fixed
}

// Point returns the current position, velocity and acceleration of point i.
func (m *AssembledModel) Point(i int) PointRef {
	return m.pointRef(i)
}

func (m *AssembledModel) pointRef(i int) PointRef {
	p := &m.points[i]
	if p.fixed {
		return PointRef{X: p.x, Y: p.y, Fixed: true}
	}
	return PointRef{
		X: m.q[p.ix], Y: m.q[p.iy],
		DotX: m.dq[p.ix], DotY: m.dq[p.iy],
		DDotX: m.ddq[p.ix], DDotY: m.ddq[p.iy],
	}
}

// SetPointPosition writes a variable point's position into q.
func (m *AssembledModel) SetPointPosition(i int, x, y float64) error {
	ix, iy, err := m.variableIndices(i)
	if err != nil {
		return err
	}
	m.q[ix], m.q[iy] = x, y
	m.stage = Uninitialized
	return nil
}

// SetPointVelocity writes a variable point's velocity into q̇.
func (m *AssembledModel) SetPointVelocity(i int, vx, vy float64) error {
	ix, iy, err := m.variableIndices(i)
	if err != nil {
		return err
	}
	m.dq[ix], m.dq[iy] = vx, vy
	if m.stage > PositionConsistent {
		m.stage = PositionConsistent
	}
	return nil
}

func (m *AssembledModel) variableIndices(i int) (int, int, error) {
	if i < 0 || i >= len(m.points) {
		return 0, 0, errors.Wrapf(ErrUnknownPoint, "point %d", i)
	}
	if m.points[i].fixed {
		return 0, 0, errors.Wrapf(ErrFixedPoint, "point %d (%s)", i, m.points[i].name)
	}
	return m.points[i].ix, m.points[i].iy, nil
}

// Q returns the shared position vector. Writes through it are visible to
// every constraint on the next UpdatePhiAndJacobians.
func (m *AssembledModel) Q() dynamo.State { return m.q }

// DotQ returns the shared velocity vector.
func (m *AssembledModel) DotQ() dynamo.State { return m.dq }

// DDotQ returns the shared acceleration vector.
func (m *AssembledModel) DDotQ() dynamo.State { return m.ddq }

// SetQ copies q into the model and drops it back to Uninitialized.
func (m *AssembledModel) SetQ(q []float64) error {
	if err := m.checkDim(q); err != nil {
		return errors.Wrap(err, "set q")
	}
	copy(m.q, q)
	m.stage = Uninitialized
	return nil
}

// SetDotQ copies q̇ into the model.
func (m *AssembledModel) SetDotQ(dq []float64) error {
	if err := m.checkDim(dq); err != nil {
		return errors.Wrap(err, "set dq")
	}
	copy(m.dq, dq)
	if m.stage > PositionConsistent {
		m.stage = PositionConsistent
	}
	return nil
}

// SetDDotQ copies q̈ into the model.
func (m *AssembledModel) SetDDotQ(ddq []float64) error {
	if err := m.checkDim(ddq); err != nil {
		return errors.Wrap(err, "set ddq")
	}
	copy(m.ddq, ddq)
	if m.stage > VelocityConsistent {
		m.stage = VelocityConsistent
	}
	return nil
}

func (m *AssembledModel) checkDim(v []float64) error {
	if len(v) == 0 {
		return dynamo.ErrEmptyState
	}
	if len(v) != len(m.q) {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "got %d coordinates, model has %d", len(v), len(m.q))
	}
	return nil
}
