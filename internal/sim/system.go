package sim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

// MechanismSystem exposes constrained mechanism dynamics as a first order
// system over x = [q; q̇].
type MechanismSystem struct {
	dyn     *dynamics.Simulator
	n       int
	lastErr error
}

func NewMechanismSystem(dyn *dynamics.Simulator) *MechanismSystem {
	return &MechanismSystem{dyn: dyn, n: dyn.Model().NumCoords()}
}

func (s *MechanismSystem) Model() *mbs.AssembledModel { return s.dyn.Model() }

func (s *MechanismSystem) Dynamics() *dynamics.Simulator { return s.dyn }

func (s *MechanismSystem) StateDim() int   { return 2 * s.n }
func (s *MechanismSystem) ControlDim() int { return s.n }

// Derive returns [q̇; q̈]. A failed solve yields a NaN derivative and is
// kept for Err.
func (s *MechanismSystem) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	ddq, err := s.Acceleration(x, u, t)
	if err != nil {
		nan := make(dynamo.State, 2*s.n)
		for i := range nan {
			nan[i] = math.NaN()
		}
		return nan
	}
	_, dq := x.Split()
	return dynamo.Stack(dq, ddq)
}

// Acceleration solves the forward dynamics at x.
func (s *MechanismSystem) Acceleration(x dynamo.State, u dynamo.Control, _ float64) (dynamo.State, error) {
	if len(x) != 2*s.n {
		err := errors.Wrapf(dynamo.ErrDimensionMismatch, "state has %d entries, want %d", len(x), 2*s.n)
		s.lastErr = err
		return nil, err
	}
	q, dq := x.Split()
	ddq, _, err := s.dyn.SolveDDotQ(q, dq, u)
	if err != nil {
		s.lastErr = err
		return nil, err
	}
	return ddq, nil
}

// Err returns the last solve failure, if any.
func (s *MechanismSystem) Err() error { return s.lastErr }

func (s *MechanismSystem) ResetErr() { s.lastErr = nil }

// Energy returns the mechanical energy at x.
func (s *MechanismSystem) Energy(x dynamo.State) float64 {
	q, dq := x.Split()
	arm := s.dyn.Model()
	if arm.SetQ(q) != nil || arm.SetDotQ(dq) != nil {
		return math.NaN()
	}
	return arm.Energy()
}

// Projector restores constraint consistency after an integration step.
type Projector interface {
	Project(x dynamo.State) (dynamo.State, error)
}

// KinematicProjector projects by coordinate partitioning: independent
// coordinates keep their integrated values and the dependent ones are
// solved from the position and velocity constraints.
type KinematicProjector struct {
	arm    *mbs.AssembledModel
	indep  []int
	params mbs.KinematicsParams
}

func NewKinematicProjector(arm *mbs.AssembledModel, indep []int, params mbs.KinematicsParams) *KinematicProjector {
	return &KinematicProjector{arm: arm, indep: append([]int(nil), indep...), params: params}
}

func (p *KinematicProjector) Project(x dynamo.State) (dynamo.State, error) {
	q, dq := x.Split()
	if err := p.arm.SetQ(q); err != nil {
		return x, err
	}
	if err := p.arm.SetDotQ(dq); err != nil {
		return x, err
	}
	res, err := p.arm.ComputeDependentPosVelAcc(p.indep, true, true, p.params)
	if err != nil {
		return x, errors.Wrap(err, "project")
	}
	if !res.PosConverged {
		return x, errors.Errorf("sim: projection did not converge, |Φ| = %.3g after %d iterations", res.PosFinalPhi, res.PosIterations)
	}
	return dynamo.Stack(p.arm.Q(), p.arm.DotQ()), nil
}
