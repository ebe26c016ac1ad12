package analysis

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

// ProjectFunc maps a state back onto the constraint manifold.
type ProjectFunc func(x dynamo.State) (dynamo.State, error)

// LyapunovConfig controls the separation estimate.
type LyapunovConfig struct {
	Dt, Duration float64
	// Perturbation is added to coordinate Coord of the shadow trajectory.
	Perturbation float64
	Coord        int
	// Renormalize resets the separation once it exceeds this size.
	Renormalize float64
	// Project, when set, keeps both trajectories consistent. A perturbed
	// mechanism is otherwise off its constraints from the first step.
	Project ProjectFunc
}

// LyapunovExponent estimates the largest Lyapunov exponent by following a
// shadow trajectory and renormalising the separation (Benettin). Positive
// values mean nearby motions diverge, as in a double pendulum.
func LyapunovExponent(sys dynamo.System, integ dynamo.Integrator, x0 dynamo.State, cfg LyapunovConfig) (float64, error) {
	if len(x0) == 0 {
		return 0, dynamo.ErrEmptyState
	}
	if cfg.Dt <= 0 || cfg.Duration <= 0 || cfg.Perturbation <= 0 {
		return 0, errors.Wrap(dynamo.ErrParameterBounds, "dt, duration and perturbation must be positive")
	}
	if cfg.Coord < 0 || cfg.Coord >= len(x0) {
		return 0, errors.Wrapf(dynamo.ErrDimensionMismatch, "coordinate %d of %d", cfg.Coord, len(x0))
	}
	if cfg.Renormalize <= 0 {
		cfg.Renormalize = 1e-3
	}

	x := x0.Clone()
	xp := x0.Clone()
	xp[cfg.Coord] += cfg.Perturbation
	var err error
	if cfg.Project != nil {
		if xp, err = cfg.Project(xp); err != nil {
			return 0, errors.Wrap(err, "project perturbed state")
		}
	}
	d0 := x.Sub(xp).Norm()
	if d0 == 0 {
		return 0, errors.New("analysis: perturbation vanished after projection")
	}

	ctrl := make(dynamo.Control, sys.ControlDim())
	var sumLog, t float64
	steps := int(math.Round(cfg.Duration / cfg.Dt))
	for k := 0; k < steps; k++ {
		x = integ.Step(sys, x, ctrl, t, cfg.Dt)
		xp = integ.Step(sys, xp, ctrl, t, cfg.Dt)
		t += cfg.Dt
		if cfg.Project != nil {
			if x, err = cfg.Project(x); err != nil {
				return 0, errors.Wrapf(err, "project at t=%g", t)
			}
			if xp, err = cfg.Project(xp); err != nil {
				return 0, errors.Wrapf(err, "project shadow at t=%g", t)
			}
		}
		if !x.IsValid() || !xp.IsValid() {
			return 0, errors.Wrapf(dynamo.ErrUnstable, "t=%g", t)
		}

		d := xp.Sub(x).Norm()
		if d == 0 {
			continue
		}
		if d > cfg.Renormalize || k == steps-1 {
			sumLog += math.Log(d / d0)
			xp = x.Add(xp.Sub(x).Scale(d0 / d))
		}
	}
	return sumLog / t, nil
}
