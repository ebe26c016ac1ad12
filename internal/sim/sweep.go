package sim

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/mbs"
)

// SweepConfig drives the independent coordinates at constant rates.
type SweepConfig struct {
	Indep  []int
	Rates  []float64
	Dt     float64
	Steps  int
	Params mbs.KinematicsParams
	Logger *zap.SugaredLogger
}

// SweepResult is a kinematic trajectory with per-step diagnostics.
type SweepResult struct {
	Times       []float64
	Q, DQ, DDQ  []dynamo.State
	Diagnostics []mbs.KinematicsResult
	Failures    int
}

// AsResult converts the sweep into a dynamo.Result with stacked states.
func (r *SweepResult) AsResult() *dynamo.Result {
	res := &dynamo.Result{
		Times:         append([]float64(nil), r.Times...),
		Accelerations: r.DDQ,
		Metrics:       map[string]float64{"failures": float64(r.Failures)},
		StepsTaken:    len(r.Times) - 1,
	}
	for i := range r.Q {
		res.States = append(res.States, dynamo.Stack(r.Q[i], r.DQ[i]))
	}
	return res
}

// Sweep performs kinematic analysis: at every step the independent
// coordinates advance by rate·dt and the dependent ones are solved from the
// constraints, seeded by the previous step. Non-converged steps are counted
// and recorded as they are; a singular jacobian stops the sweep.
func Sweep(ctx context.Context, arm *mbs.AssembledModel, cfg SweepConfig) (*SweepResult, error) {
	if len(cfg.Rates) != len(cfg.Indep) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d rates for %d independent coordinates", len(cfg.Rates), len(cfg.Indep))
	}
	if cfg.Dt <= 0 || cfg.Steps < 0 {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "dt %g, steps %d", cfg.Dt, cfg.Steps)
	}
	cfg.Params = cfg.Params.WithDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Global().Named("sweep")
	}

	q0 := arm.Q().Clone()
	res := &SweepResult{}
	for k := 0; k <= cfg.Steps; k++ {
		select {
		case <-ctx.Done():
			return res, errors.Wrap(dynamo.ErrContextCanceled, ctx.Err().Error())
		default:
		}
		t := float64(k) * cfg.Dt

		q := arm.Q().Clone()
		dq := arm.DotQ().Clone()
		ddq := arm.DDotQ().Clone()
		for j, idx := range cfg.Indep {
			if idx < 0 || idx >= len(q) {
				return res, errors.Wrapf(mbs.ErrBadIndependent, "index %d", idx)
			}
			q[idx] = q0[idx] + cfg.Rates[j]*t
			dq[idx] = cfg.Rates[j]
			ddq[idx] = 0
		}
		if err := arm.SetQ(q); err != nil {
			return res, err
		}
		if err := arm.SetDotQ(dq); err != nil {
			return res, err
		}
		if err := arm.SetDDotQ(ddq); err != nil {
			return res, err
		}

		diag, err := arm.ComputeDependentPosVelAcc(cfg.Indep, true, true, cfg.Params)
		if err != nil {
			return res, errors.Wrapf(err, "sweep step %d (t=%.4f)", k, t)
		}
		if !diag.PosConverged {
			res.Failures++
			logger.Warnw("position not converged", "step", k, "t", t, "phi", diag.PosFinalPhi)
		}
		res.Times = append(res.Times, t)
		res.Q = append(res.Q, arm.Q().Clone())
		res.DQ = append(res.DQ, arm.DotQ().Clone())
		res.DDQ = append(res.DDQ, arm.DDotQ().Clone())
		res.Diagnostics = append(res.Diagnostics, diag)
	}
	logger.Debugw("sweep finished", "steps", cfg.Steps, "failures", res.Failures)
	return res, nil
}
