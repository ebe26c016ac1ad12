package viz

import (
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
	"github.com/san-kum/linkage/internal/sim"
)

// Frame is one displayed instant.
type Frame struct {
	Snapshot  mbs.Snapshot
	Time      float64
	Energy    float64
	Violation float64
}

// Source produces frames for the viewer. First rewinds and returns the
// initial frame; Next reports false once the source is exhausted.
type Source interface {
	First() (Frame, error)
	Next() (Frame, bool, error)
}

// LiveSource integrates a mechanism one step per frame.
type LiveSource struct {
	arm   *mbs.AssembledModel
	sys   dynamo.System
	integ dynamo.Integrator
	ctrl  dynamo.Controller
	proj  sim.Projector

	x0, x dynamo.State
	t, dt float64
}

// NewLiveSource starts at x0 = [q; q̇]. proj may be nil.
func NewLiveSource(arm *mbs.AssembledModel, sys dynamo.System, integ dynamo.Integrator, ctrl dynamo.Controller, proj sim.Projector, x0 dynamo.State, dt float64) *LiveSource {
	return &LiveSource{arm: arm, sys: sys, integ: integ, ctrl: ctrl, proj: proj, x0: x0.Clone(), x: x0.Clone(), dt: dt}
}

// Controller exposes the controller for parameter tuning.
func (s *LiveSource) Controller() dynamo.Controller { return s.ctrl }

func (s *LiveSource) Next() (Frame, bool, error) {
	u := s.ctrl.Compute(s.x, s.t)
	next := s.integ.Step(s.sys, s.x, u, s.t, s.dt)
	if s.proj != nil {
		p, err := s.proj.Project(next)
		if err != nil {
			return Frame{}, false, errors.Wrapf(err, "project at t=%g", s.t+s.dt)
		}
		next = p
	}
	if !next.IsValid() {
		return Frame{}, false, errors.Wrapf(dynamo.ErrUnstable, "t=%g", s.t+s.dt)
	}
	s.x = next
	s.t += s.dt
	f, err := s.frame()
	return f, true, err
}

func (s *LiveSource) frame() (Frame, error) {
	q, dq := s.x.Split()
	snap, err := SnapshotAt(s.arm, q, dq)
	if err != nil {
		return Frame{}, err
	}
	s.arm.UpdatePhiAndJacobians()
	f := Frame{Snapshot: snap, Time: s.t, Violation: s.arm.PhiNorm()}
	if h, ok := s.sys.(dynamo.Hamiltonian); ok {
		f.Energy = h.Energy(s.x)
	}
	return f, nil
}

func (s *LiveSource) First() (Frame, error) {
	s.x, s.t = s.x0.Clone(), 0
	if r, ok := s.ctrl.(interface{ Reset() }); ok {
		r.Reset()
	}
	return s.frame()
}

// ReplaySource plays back a recorded trajectory.
type ReplaySource struct {
	arm   *mbs.AssembledModel
	times []float64
	q, dq []dynamo.State
	k     int
}

// NewReplaySource replays q (and dq when non-nil) at the given times.
func NewReplaySource(arm *mbs.AssembledModel, times []float64, q, dq []dynamo.State) (*ReplaySource, error) {
	if len(q) == 0 {
		return nil, dynamo.ErrEmptyState
	}
	if len(times) != len(q) || (dq != nil && len(dq) != len(q)) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d times, %d q rows, %d dq rows", len(times), len(q), len(dq))
	}
	return &ReplaySource{arm: arm, times: times, q: q, dq: dq}, nil
}

// Frames renders the whole recording, used to fit the view.
func (s *ReplaySource) Frames() ([]mbs.Snapshot, error) {
	out := make([]mbs.Snapshot, len(s.q))
	for i, q := range s.q {
		snap, err := SnapshotAt(s.arm, q, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = snap
	}
	return out, nil
}

func (s *ReplaySource) First() (Frame, error) {
	s.k = 0
	f, _, err := s.Next()
	return f, err
}

func (s *ReplaySource) Next() (Frame, bool, error) {
	if s.k >= len(s.q) {
		return Frame{}, false, nil
	}
	var dq dynamo.State
	if s.dq != nil {
		dq = s.dq[s.k]
	}
	snap, err := SnapshotAt(s.arm, s.q[s.k], dq)
	if err != nil {
		return Frame{}, false, errors.Wrapf(err, "row %d", s.k)
	}
	s.arm.UpdatePhiAndJacobians()
	f := Frame{Snapshot: snap, Time: s.times[s.k], Violation: s.arm.PhiNorm()}
	if dq != nil {
		f.Energy = s.arm.Energy()
	}
	s.k++
	return f, true, nil
}
