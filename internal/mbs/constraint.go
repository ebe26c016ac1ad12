package mbs

import (
	"github.com/pkg/errors"
)

// Constraint is one kinematic joint. A constraint owns a fixed set of rows
// of Φ and a fixed sparsity pattern in the jacobian arenas; Update rewrites
// only the values at those slots.
type Constraint interface {
	// BuildSparseStructures claims rows and jacobian slots in m. It runs
	// once per assembled model.
	BuildSparseStructures(m *AssembledModel) error

	// Update recomputes Φ, Φ̇, Φ_q, Φ̇_q and ∂(Φ_q q̇)/∂q for the owned rows
	// from the current q and q̇.
	Update(m *AssembledModel)

	// Points returns the referenced point indices.
	Points() []int

	// Rows returns the owned rows of Φ. Empty before BuildSparseStructures.
	Rows() []int

	// Clone returns an unregistered copy, ready for another model.
	Clone() Constraint
}

type pointSlots struct {
	x, y int
}

// jacobRow holds the slots of one Φ row, per referenced point, in each of
// the three jacobian arenas. Fixed points get -1.
type jacobRow struct {
	dPhi    []pointSlots
	dotDPhi []pointSlots
	dPhiqdq []pointSlots
}

type constraintCommon struct {
	points     []int
	rows       []int
	jacob      []jacobRow
	registered bool
}

func newCommon(points ...int) constraintCommon {
	return constraintCommon{points: points}
}

func (c *constraintCommon) Points() []int {
	out := make([]int, len(c.points))
	copy(out, c.points)
	return out
}

func (c *constraintCommon) Rows() []int {
	out := make([]int, len(c.rows))
	copy(out, c.rows)
	return out
}

func (c *constraintCommon) cloneCommon() constraintCommon {
	pts := make([]int, len(c.points))
	copy(pts, c.points)
	return constraintCommon{points: pts}
}

// buildCommon validates the point list, claims nRows rows and registers
// one x and one y slot per variable point and row.
func (c *constraintCommon) buildCommon(m *AssembledModel, nRows int) error {
	if c.registered {
		return ErrAlreadyRegistered
	}
	seen := make(map[int]bool, len(c.points))
	anyVariable := false
	for _, p := range c.points {
		if p < 0 || p >= m.NumPoints() {
			return errors.Wrapf(ErrUnknownPoint, "point %d", p)
		}
		if seen[p] {
			return errors.Wrapf(ErrDuplicatePoint, "point %d (%s)", p, m.PointName(p))
		}
		seen[p] = true
		if !m.IsFixed(p) {
			anyVariable = true
		}
	}
	if !anyVariable {
		return errors.Wrapf(ErrFixedOnlyConstraint, "points %v", c.points)
	}

	c.rows = m.allocRows(nRows)
	c.jacob = make([]jacobRow, nRows)
	for r, row := range c.rows {
		jr := jacobRow{
			dPhi:    make([]pointSlots, len(c.points)),
			dotDPhi: make([]pointSlots, len(c.points)),
			dPhiqdq: make([]pointSlots, len(c.points)),
		}
		for k, p := range c.points {
			ix, iy, ok := m.PointIndices(p)
			if !ok {
				ix, iy = -1, -1
			}
			jr.dPhi[k] = pointSlots{m.phiQ.Slot(row, ix), m.phiQ.Slot(row, iy)}
			jr.dotDPhi[k] = pointSlots{m.dotPhiQ.Slot(row, ix), m.dotPhiQ.Slot(row, iy)}
			jr.dPhiqdq[k] = pointSlots{m.dPhiqdq.Slot(row, ix), m.dPhiqdq.Slot(row, iy)}
		}
		c.jacob[r] = jr
	}
	c.registered = true
	return nil
}

// coords returns the current state of the k-th referenced point.
func (c *constraintCommon) coords(m *AssembledModel, k int) PointRef {
	return m.pointRef(c.points[k])
}

// setJacob writes the partials of row r wrt point k into all three arenas.
func (c *constraintCommon) setJacob(m *AssembledModel, r, k int, d, dotD, dqd Vec2) {
	jr := &c.jacob[r]
	m.phiQ.Set(jr.dPhi[k].x, d.X)
	m.phiQ.Set(jr.dPhi[k].y, d.Y)
	m.dotPhiQ.Set(jr.dotDPhi[k].x, dotD.X)
	m.dotPhiQ.Set(jr.dotDPhi[k].y, dotD.Y)
	m.dPhiqdq.Set(jr.dPhiqdq[k].x, dqd.X)
	m.dPhiqdq.Set(jr.dPhiqdq[k].y, dqd.Y)
}
