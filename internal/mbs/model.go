package mbs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Stage is how far the current state is known to satisfy the constraints.
type Stage int

const (
	Uninitialized Stage = iota
	PositionConsistent
	VelocityConsistent
	AccelerationConsistent
)

func (s Stage) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case PositionConsistent:
		return "position-consistent"
	case VelocityConsistent:
		return "velocity-consistent"
	case AccelerationConsistent:
		return "acceleration-consistent"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type coordInfo struct {
	name  string
	index int
}

// AssembledModel is a mechanism ready for evaluation. It owns q, q̇, q̈ and
// every derived buffer. Methods mutate shared state and are not safe for
// concurrent use; give each goroutine its own model.
type AssembledModel struct {
	points      []pointInfo
	coords      []coordInfo
	bodies      []*Body
	constraints []Constraint
	gravity     Vec2

	q, dq, ddq dynamo.State

	phi    []float64
	dotPhi []float64
	phiT   []float64

	phiQ    *Sparse
	dotPhiQ *Sparse
	dPhiqdq *Sparse

	mass      *Sparse
	massSlots [][4][4]int
	forces    map[int]Vec2

	stage  Stage
	logger *zap.SugaredLogger
}

// SetLogger replaces the model logger.
func (m *AssembledModel) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		m.logger = l
	}
}

func (m *AssembledModel) allocRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = len(m.phi)
		m.phi = append(m.phi, 0)
		m.dotPhi = append(m.dotPhi, 0)
		m.phiT = append(m.phiT, 0)
	}
	return rows
}

func (m *AssembledModel) checkBody(b *Body) error {
	for _, p := range b.Points {
		if p < 0 || p >= len(m.points) {
			return errors.Wrapf(ErrUnknownPoint, "point %d", p)
		}
	}
	if b.Points[0] == b.Points[1] {
		return errors.Wrap(ErrDegenerateBody, "both ends on the same point")
	}
	if b.Length() <= 0 {
		return errors.Wrapf(ErrDegenerateBody, "length %g", b.Length())
	}
	if b.Mass() < 0 || b.I0() < 0 {
		return errors.Wrapf(dynamo.ErrParameterBounds, "mass %g, I0 %g", b.Mass(), b.I0())
	}
	return nil
}

// UpdatePhiAndJacobians recomputes every constraint-derived quantity from
// the current q and q̇.
func (m *AssembledModel) UpdatePhiAndJacobians() {
	for _, c := range m.constraints {
		c.Update(m)
	}
}

// Stage returns the consistency stage of the current state.
func (m *AssembledModel) Stage() Stage { return m.stage }

func (m *AssembledModel) NumCoords() int { return len(m.q) }

func (m *AssembledModel) NumConstraints() int { return len(m.phi) }

// Mobility returns n - m, the degrees of freedom of a non-redundant mechanism.
func (m *AssembledModel) Mobility() int { return len(m.q) - len(m.phi) }

func (m *AssembledModel) Gravity() Vec2 { return m.gravity }

func (m *AssembledModel) Bodies() []*Body {
	out := make([]*Body, len(m.bodies))
	copy(out, m.bodies)
	return out
}

func (m *AssembledModel) Constraints() []Constraint {
	out := make([]Constraint, len(m.constraints))
	copy(out, m.constraints)
	return out
}

func (m *AssembledModel) Phi() []float64 { return append([]float64(nil), m.phi...) }

func (m *AssembledModel) DotPhi() []float64 { return append([]float64(nil), m.dotPhi...) }

// PhiT returns ∂Φ/∂t. Every joint here is scleronomic, so it is zero.
func (m *AssembledModel) PhiT() []float64 { return append([]float64(nil), m.phiT...) }

// PhiNorm returns ‖Φ‖₂.
func (m *AssembledModel) PhiNorm() float64 {
	if len(m.phi) == 0 {
		return 0
	}
	return floats.Norm(m.phi, 2)
}

// Gamma returns the right hand side of the acceleration equation, -Φ̇_q q̇.
func (m *AssembledModel) Gamma() []float64 {
	g := m.dotPhiQ.MulVec(m.dq)
	floats.Scale(-1, g)
	return g
}

// PhiQ returns the jacobian arena. The pattern is fixed; values are valid
// after the last UpdatePhiAndJacobians.
func (m *AssembledModel) PhiQ() *Sparse { return m.phiQ }

func (m *AssembledModel) DotPhiQ() *Sparse { return m.dotPhiQ }

func (m *AssembledModel) DPhiqdq() *Sparse { return m.dPhiqdq }

// PhiQDense returns Φ_q as a dense m×n matrix, or nil without constraints.
func (m *AssembledModel) PhiQDense() *mat.Dense { return m.phiQ.Dense() }

func (m *AssembledModel) DotPhiQDense() *mat.Dense { return m.dotPhiQ.Dense() }

// DPhiqdqDense returns ∂(Φ_q q̇)/∂q as a dense m×n matrix.
func (m *AssembledModel) DPhiqdqDense() *mat.Dense { return m.dPhiqdq.Dense() }

// ExtraCoordinateIndex maps an extra coordinate id to its q index.
func (m *AssembledModel) ExtraCoordinateIndex(id int) (int, error) {
	if id < 0 || id >= len(m.coords) {
		return -1, errors.Wrapf(ErrUnknownCoordinate, "id %d", id)
	}
	return m.coords[id].index, nil
}

// CoordinateIndex resolves a coordinate name. Extra coordinates use their
// own name; point coordinates are "<point>.x" and "<point>.y".
func (m *AssembledModel) CoordinateIndex(name string) (int, error) {
	for _, c := range m.coords {
		if c.name == name {
			return c.index, nil
		}
	}
	if base, axis, ok := strings.Cut(name, "."); ok {
		for i, p := range m.points {
			if p.name != base {
				continue
			}
			if p.fixed {
				return -1, errors.Wrapf(ErrFixedPoint, "coordinate %q", name)
			}
			switch axis {
			case "x":
				return m.points[i].ix, nil
			case "y":
				return m.points[i].iy, nil
			}
		}
	}
	return -1, errors.Wrapf(ErrUnknownCoordinate, "%q", name)
}

// CoordinateName is the inverse of CoordinateIndex.
func (m *AssembledModel) CoordinateName(idx int) string {
	for _, c := range m.coords {
		if c.index == idx {
			return c.name
		}
	}
	for _, p := range m.points {
		if p.fixed {
			continue
		}
		if p.ix == idx {
			return p.name + ".x"
		}
		if p.iy == idx {
			return p.name + ".y"
		}
	}
	return fmt.Sprintf("q%d", idx)
}

// CoordinateNames returns the name of every q entry in order.
func (m *AssembledModel) CoordinateNames() []string {
	out := make([]string, len(m.q))
	for i := range out {
		out[i] = m.CoordinateName(i)
	}
	return out
}

// BodyPose is a body as a renderer sees it.
type BodyPose struct {
	Name   string
	P0, P1 Vec2
	Render RenderParams
}

// Snapshot is a deep copy of the model state at one instant.
type Snapshot struct {
	Q, DotQ, DDotQ dynamo.State
	Points         []PointRef
	Bodies         []BodyPose
	Stage          Stage
}

func (m *AssembledModel) Snapshot() Snapshot {
	s := Snapshot{
		Q:      m.q.Clone(),
		DotQ:   m.dq.Clone(),
		DDotQ:  m.ddq.Clone(),
		Points: make([]PointRef, len(m.points)),
		Bodies: make([]BodyPose, len(m.bodies)),
		Stage:  m.stage,
	}
	for i := range m.points {
		s.Points[i] = m.pointRef(i)
	}
	for i, b := range m.bodies {
		s.Bodies[i] = BodyPose{
			Name:   b.Name,
			P0:     s.Points[b.Points[0]].Position(),
			P1:     s.Points[b.Points[1]].Position(),
			Render: b.Render,
		}
	}
	return s
}

// Restore puts back the q, q̇, q̈ and stage of a snapshot taken from this
// model.
func (m *AssembledModel) Restore(s Snapshot) error {
	if err := m.SetQ(s.Q); err != nil {
		return err
	}
	if err := m.SetDotQ(s.DotQ); err != nil {
		return err
	}
	if err := m.SetDDotQ(s.DDotQ); err != nil {
		return err
	}
	m.UpdatePhiAndJacobians()
	m.stage = s.Stage
	return nil
}
