package sim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/logging"
)

type accelerationSource interface {
	Acceleration(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error)
}

type errSource interface {
	Err() error
	ResetErr()
}

type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
	controller dynamo.Controller
	projector  Projector
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	logger     *zap.SugaredLogger
}

func New(dyn dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		logger:     logging.Global().Named("sim"),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) SetProjector(p Projector)      { s.projector = p }

func (s *Simulator) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Simulator) System() dynamo.System { return s.dyn }

func (s *Simulator) control(x dynamo.State, t float64) dynamo.Control {
	if s.controller == nil {
		return nil
	}
	return s.controller.Compute(x, t)
}

func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != s.dyn.StateDim() {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "x0 has %d entries, system wants %d", len(x0), s.dyn.StateDim())
	}
	if es, ok := s.dyn.(errSource); ok {
		es.ResetErr()
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &dynamo.Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	if s.projector != nil {
		px, err := s.projector.Project(x)
		if err != nil {
			return nil, errors.Wrap(err, "initial projection")
		}
		x = px
	}
	t := 0.0
	dt := cfg.Dt

	s.record(result, x, nil, t)
	initialEnergy := s.computeEnergy(x)
	s.logger.Debugw("run started", "steps", steps, "dt", dt, "adaptive", cfg.Adaptive)

	for i := 0; i < steps && t < cfg.Duration-1e-12; i++ {
		select {
		case <-ctx.Done():
			return result, errors.Wrap(dynamo.ErrContextCanceled, ctx.Err().Error())
		default:
		}

		u := s.control(x, t)

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		var newX dynamo.State
		var stepErr error
		usedDt := dt

		if cfg.Adaptive {
			newX, usedDt, dt, stepErr = s.adaptiveStep(x, u, t, dt, cfg)
		} else {
			newX = s.integrator.Step(s.dyn, x, u, t, dt)
		}

		if stepErr != nil {
			result.Errors = append(result.Errors, stepErr)
		}
		if es, ok := s.dyn.(errSource); ok && es.Err() != nil {
			result.Errors = append(result.Errors, &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: es.Err()})
			s.logger.Warnw("dynamics failed", "step", i, "t", t, "error", es.Err())
			break
		}

		if cfg.ValidateState && !newX.IsValid() {
			err := dynamo.SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
			result.Errors = append(result.Errors, err)
			break
		}

		if s.projector != nil {
			px, err := s.projector.Project(newX)
			if err != nil {
				result.Errors = append(result.Errors, &dynamo.SimulationError{Step: i, Time: t + usedDt, State: newX, Wrapped: err})
				s.logger.Warnw("projection failed", "step", i, "error", err)
			} else {
				newX = px
			}
		}

		x = newX
		t += usedDt
		result.StepsTaken++
		result.Controls = append(result.Controls, u)
		s.record(result, x, u, t)
	}

	finalEnergy := s.computeEnergy(x)
	if initialEnergy != 0 {
		result.EnergyDrift = math.Abs(finalEnergy-initialEnergy) / math.Abs(initialEnergy)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	s.logger.Debugw("run finished", "steps", result.StepsTaken, "drift", result.EnergyDrift, "errors", len(result.Errors))

	return result, nil
}

func (s *Simulator) record(result *dynamo.Result, x dynamo.State, u dynamo.Control, t float64) {
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)
	if as, ok := s.dyn.(accelerationSource); ok {
		acc, err := as.Acceleration(x, u, t)
		if err != nil {
			acc = make(dynamo.State, len(x)/2)
		}
		result.Accelerations = append(result.Accelerations, acc)
	}
}

func (s *Simulator) validateConfig(cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return errors.Wrapf(dynamo.ErrParameterBounds, "dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return errors.Wrapf(dynamo.ErrParameterBounds, "duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return errors.Wrap(dynamo.ErrParameterBounds, "tolerance must be positive for adaptive stepping")
	}
	return nil
}

func (s *Simulator) computeEnergy(x dynamo.State) float64 {
	if h, ok := s.dyn.(dynamo.Hamiltonian); ok {
		return h.Energy(x)
	}
	return 0
}

// adaptiveStep returns the new state, the step actually taken and the
// suggested next step.
func (s *Simulator) adaptiveStep(x dynamo.State, u dynamo.Control, t, dt float64, cfg dynamo.Config) (dynamo.State, float64, float64, error) {
	if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		newX, next, err := adaptive.StepAdaptive(s.dyn, x, u, t, dt, cfg.Tolerance)
		return newX, dt, next, err
	}

	for {
		x1 := s.integrator.Step(s.dyn, x, u, t, dt)
		xHalf := s.integrator.Step(s.dyn, x, u, t, dt/2)
		x2 := s.integrator.Step(s.dyn, xHalf, u, t+dt/2, dt/2)

		err := x1.Sub(x2).Norm()
		if err > cfg.Tolerance && dt/2 >= cfg.MinDt {
			dt /= 2
			continue
		}
		next := dt
		if err < cfg.Tolerance/10 && dt < cfg.MaxDt {
			next = math.Min(dt*2, cfg.MaxDt)
		}
		return x2, dt, next, nil
	}
}

// RunWithCallback steps until the duration elapses or callback returns
// false. No trajectory is kept.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 dynamo.State, cfg dynamo.Config, callback func(dynamo.State, dynamo.Control, float64) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	for t < cfg.Duration {
		select {
		case <-ctx.Done():
			return errors.Wrap(dynamo.ErrContextCanceled, ctx.Err().Error())
		default:
		}

		u := s.control(x, t)

		if !callback(x, u, t) {
			return nil
		}

		x = s.integrator.Step(s.dyn, x, u, t, dt)
		if s.projector != nil {
			if px, err := s.projector.Project(x); err == nil {
				x = px
			}
		}
		t += dt

		if cfg.ValidateState && !x.IsValid() {
			return errors.Wrapf(dynamo.ErrInvalidState, "t=%.4f", t)
		}
	}

	return nil
}
