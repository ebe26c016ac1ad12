// Package experiment wires a run configuration into an assembled model,
// dynamics, integrator, controller and metrics, and runs simulations,
// kinematic sweeps and trajectory estimation on it.
package experiment

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/mbs"
	"github.com/san-kum/linkage/internal/optim"
	"github.com/san-kum/linkage/internal/sim"
)

type Experiment struct {
	cfg      *config.Config
	mech     *config.Mechanism
	registry *Registry
	arm      *mbs.AssembledModel
	indep    []int
	drive    int
	x0       dynamo.State
	dyn      *dynamics.Simulator
	sys      *sim.MechanismSystem
	logger   *zap.SugaredLogger
}

type Option func(*Experiment)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Experiment) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) {
		if r != nil {
			e.registry = r
		}
	}
}

// New assembles the configured mechanism and brings it to a consistent
// initial state.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	e := &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		drive:    -1,
		logger:   logging.Global().Named("experiment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mech, err := cfg.ResolveMechanism()
	if err != nil {
		return nil, err
	}
	arm, indep, err := mech.Assemble()
	if err != nil {
		return nil, errors.Wrapf(err, "mechanism %q", mech.Name)
	}
	arm.SetLogger(e.logger.Named("mbs"))
	e.mech, e.arm, e.indep = mech, arm, indep

	if name := cfg.Drive.Coordinate; name != "" {
		idx, err := arm.CoordinateIndex(name)
		switch {
		case err == nil:
			e.drive = idx
		case cfg.Controller != "none":
			return nil, errors.Wrap(err, "drive coordinate")
		default:
			e.logger.Debugw("drive coordinate not in mechanism", "coordinate", name)
		}
	}

	res, err := arm.ComputeDependentPosVelAcc(indep, true, true, cfg.KinematicsParams())
	if err != nil {
		return nil, errors.Wrap(err, "initial state")
	}
	if !res.PosConverged {
		return nil, errors.Errorf("experiment: initial positions did not converge, |Φ| = %.3g", res.PosFinalPhi)
	}
	e.x0 = dynamo.Stack(arm.Q(), arm.DotQ())

	e.dyn = dynamics.New(arm,
		dynamics.WithBaumgarte(cfg.Baumgarte.Alpha, cfg.Baumgarte.Beta),
		dynamics.WithLogger(e.logger.Named("dynamics")))
	if err := e.dyn.Prepare(); err != nil {
		return nil, err
	}
	e.sys = sim.NewMechanismSystem(e.dyn)

	e.logger.Debugw("experiment ready",
		"mechanism", mech.Name, "coordinates", arm.NumCoords(),
		"constraints", arm.NumConstraints(), "independent", indep, "drive", e.drive)
	return e, nil
}

func (e *Experiment) Config() *config.Config        { return e.cfg }
func (e *Experiment) Mechanism() *config.Mechanism  { return e.mech }
func (e *Experiment) Model() *mbs.AssembledModel    { return e.arm }
func (e *Experiment) Dynamics() *dynamics.Simulator { return e.dyn }
func (e *Experiment) System() *sim.MechanismSystem  { return e.sys }
func (e *Experiment) Independent() []int            { return append([]int(nil), e.indep...) }
func (e *Experiment) DriveIndex() int               { return e.drive }
func (e *Experiment) InitialState() dynamo.State    { return e.x0.Clone() }
func (e *Experiment) Logger() *zap.SugaredLogger    { return e.logger }

// Components builds the configured integrator and controller, and the
// kinematic projector when projection is enabled (nil otherwise).
func (e *Experiment) Components() (dynamo.Integrator, dynamo.Controller, sim.Projector, error) {
	integ, err := e.registry.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return nil, nil, nil, err
	}
	ctrl, err := e.registry.GetController(e.cfg.Controller, e.arm.NumCoords(), e.drive, e.cfg.Drive)
	if err != nil {
		return nil, nil, nil, err
	}
	if !e.cfg.Kinematics.Project {
		return integ, ctrl, nil, nil
	}
	return integ, ctrl, sim.NewKinematicProjector(e.arm, e.indep, e.cfg.KinematicsParams()), nil
}

// Simulator builds a fresh time-stepping simulator from Components with
// the default metrics attached.
func (e *Experiment) Simulator() (*sim.Simulator, error) {
	integ, ctrl, proj, err := e.Components()
	if err != nil {
		return nil, err
	}
	s := sim.New(e.sys, integ, ctrl)
	s.SetLogger(e.logger.Named("sim"))
	for _, m := range e.registry.DefaultMetrics(e.sys, e.arm) {
		s.AddMetric(m)
	}
	if proj != nil {
		s.SetProjector(proj)
	}
	return s, nil
}

// Run integrates the dynamics from the initial state.
func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	s, err := e.Simulator()
	if err != nil {
		return nil, err
	}
	e.logger.Infow("run", "mechanism", e.mech.Name, "integrator", e.cfg.Integrator,
		"controller", e.cfg.Controller, "dt", e.cfg.Dt, "duration", e.cfg.Duration)
	res, err := s.Run(ctx, e.InitialState(), e.cfg.SimConfig())
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		e.logger.Warnw("run finished with errors", "count", len(res.Errors), "first", res.Errors[0])
	}
	return res, nil
}

// SweepRates returns the independent coordinate rates: Drive.Rate on the
// drive coordinate, or on the first independent coordinate when the drive
// is not one of them, and zero elsewhere.
func (e *Experiment) SweepRates() []float64 {
	rates := make([]float64, len(e.indep))
	if len(rates) == 0 {
		return rates
	}
	slot := 0
	for j, idx := range e.indep {
		if idx == e.drive {
			slot = j
		}
	}
	rates[slot] = e.cfg.Drive.Rate
	return rates
}

// Sweep runs a kinematic analysis over the configured duration.
func (e *Experiment) Sweep(ctx context.Context) (*sim.SweepResult, error) {
	if err := e.reset(); err != nil {
		return nil, err
	}
	e.logger.Infow("sweep", "mechanism", e.mech.Name, "rates", e.SweepRates(), "steps", e.cfg.Steps())
	return sim.Sweep(ctx, e.arm, sim.SweepConfig{
		Indep:  e.indep,
		Rates:  e.SweepRates(),
		Dt:     e.cfg.Dt,
		Steps:  e.cfg.Steps(),
		Params: e.cfg.KinematicsParams(),
		Logger: e.logger.Named("sweep"),
	})
}

// Estimate runs the incremental trajectory smoother from the initial
// positions at rest.
func (e *Experiment) Estimate(ctx context.Context) (*optim.EstimateResult, error) {
	q0, _ := e.InitialState().Split()
	settings := optim.DefaultSettings()
	return optim.Estimate(ctx, e.dyn, q0, optim.EstimateConfig{
		Dt:         e.cfg.Dt,
		Steps:      e.cfg.Estimate.Steps,
		Every:      e.cfg.Estimate.Every,
		Noise:      optim.DefaultTrajectoryNoise(e.arm.NumCoords(), e.indep),
		Settings:   settings,
		FinalIters: e.cfg.Estimate.FinalIters,
		Logger:     e.logger.Named("estimate"),
	})
}

// SolveAt solves q̈ and λ at x with no drive forces and returns the
// joint reactions alongside.
func (e *Experiment) SolveAt(x dynamo.State) (ddq, lambda, reactions []float64, err error) {
	q, dq := x.Split()
	ddq, lambda, err = e.dyn.SolveDDotQ(q, dq, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	reactions, err = e.dyn.Reactions(lambda)
	return ddq, lambda, reactions, err
}

func (e *Experiment) reset() error {
	q, dq := e.x0.Split()
	if err := e.arm.SetQ(q); err != nil {
		return err
	}
	if err := e.arm.SetDotQ(dq); err != nil {
		return err
	}
	e.arm.UpdatePhiAndJacobians()
	return nil
}
