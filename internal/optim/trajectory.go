package optim

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/factors"
	"github.com/san-kum/linkage/internal/logging"
)

// TrajectoryNoise holds the σ of every factor family of a trajectory graph.
type TrajectoryNoise struct {
	PriorQ  factors.Noise
	PriorV  factors.Noise
	Vel     factors.Noise
	Acc     factors.Noise
	Dyn     factors.Noise
	ConstrQ factors.Noise
	ConstrV factors.Noise
}

// DefaultTrajectoryNoise pins the initial velocity of the independent
// coordinates to zero and leaves the others free.
func DefaultTrajectoryNoise(n int, indep []int) TrajectoryNoise {
	sigmas := make([]float64, n)
	for i := range sigmas {
		sigmas[i] = 1e6
	}
	for _, i := range indep {
		if i >= 0 && i < n {
			sigmas[i] = 1e-3
		}
	}
	return TrajectoryNoise{
		PriorQ:  factors.NewIsotropic(0.1),
		PriorV:  factors.NewDiagonal(sigmas...),
		Vel:     factors.NewIsotropic(0.01),
		Acc:     factors.NewIsotropic(0.01),
		Dyn:     factors.NewIsotropic(0.1),
		ConstrQ: factors.NewIsotropic(0.001),
		ConstrV: factors.NewIsotropic(0.001),
	}
}

// AddStep appends the factors linking step k to step k+1: trapezoidal
// integration of q and q̇, dynamics and both constraint levels at step k.
func AddStep(graph *factors.Graph, sim *dynamics.Simulator, k int, dt float64, noise TrajectoryNoise) {
	arm := sim.Model()
	n := arm.NumCoords()
	graph.Add(factors.NewTrapInt(dt, n, factors.Q(k), factors.Q(k+1), factors.V(k), factors.V(k+1)), noise.Vel)
	graph.Add(factors.NewTrapInt(dt, n, factors.V(k), factors.V(k+1), factors.A(k), factors.A(k+1)), noise.Acc)
	graph.Add(factors.NewDynamics(sim, factors.Q(k), factors.V(k), factors.A(k)), noise.Dyn)
	if arm.NumConstraints() > 0 {
		graph.Add(factors.NewConstraints(arm, factors.Q(k)), noise.ConstrQ)
		graph.Add(factors.NewConstraintsVel(arm, factors.Q(k), factors.V(k)), noise.ConstrV)
	}
}

// BuildTrajectoryGraph builds the full graph over steps intervals starting
// from rest at q0, with every value initialized to the start state.
func BuildTrajectoryGraph(sim *dynamics.Simulator, q0 dynamo.State, steps int, dt float64, noise TrajectoryNoise) (*factors.Graph, factors.Values) {
	n := len(q0)
	zeros := make(dynamo.State, n)
	graph := factors.NewGraph()
	graph.Add(factors.NewPrior(factors.Q(0), q0), noise.PriorQ)
	graph.Add(factors.NewPrior(factors.V(0), zeros), noise.PriorV)

	values := factors.Values{}
	for k := 0; k <= steps; k++ {
		values[factors.Q(k)] = q0.Clone()
		values[factors.V(k)] = zeros.Clone()
		values[factors.A(k)] = zeros.Clone()
	}
	for k := 0; k < steps; k++ {
		AddStep(graph, sim, k, dt, noise)
	}
	graph.Add(factors.NewDynamics(sim, factors.Q(steps), factors.V(steps), factors.A(steps)), noise.Dyn)
	return graph, values
}

// EstimateConfig drives the incremental estimator.
type EstimateConfig struct {
	Dt    float64
	Steps int
	// Every is the number of steps between optimizations.
	Every      int
	Noise      TrajectoryNoise
	Settings   Settings
	FinalIters int
	Logger     *zap.SugaredLogger
}

// EstimateRun records one optimization of the incremental estimator.
type EstimateRun struct {
	Step         int
	InitialError float64
	FinalError   float64
	RMSE         float64
	Iterations   int
}

type EstimateResult struct {
	Q, V, A []dynamo.State
	Runs    []EstimateRun
	Values  factors.Values
}

// Estimate grows the trajectory graph one step at a time, seeding each new
// step with the latest estimate of the previous one, and smooths the whole
// graph every cfg.Every steps and once more at the end.
func Estimate(ctx context.Context, sim *dynamics.Simulator, q0 dynamo.State, cfg EstimateConfig) (*EstimateResult, error) {
	if cfg.Steps <= 0 || cfg.Dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "steps %d, dt %g", cfg.Steps, cfg.Dt)
	}
	if cfg.Every <= 0 {
		cfg.Every = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Global().Named("estimate")
	}
	settings := cfg.Settings
	settings.Logger = logger

	n := len(q0)
	zeros := make(dynamo.State, n)
	graph := factors.NewGraph()
	graph.Add(factors.NewPrior(factors.Q(0), q0), cfg.Noise.PriorQ)
	graph.Add(factors.NewPrior(factors.V(0), zeros), cfg.Noise.PriorV)

	values := factors.Values{}
	lastQ, lastV, lastA := q0.Clone(), zeros.Clone(), zeros.Clone()
	res := &EstimateResult{}

	for k := 0; k < cfg.Steps; k++ {
		AddStep(graph, sim, k, cfg.Dt, cfg.Noise)
		for _, key := range []factors.Key{factors.Q(k), factors.V(k), factors.A(k)} {
			if _, ok := values[key]; ok {
				continue
			}
			switch key.Kind {
			case factors.KindQ:
				values[key] = lastQ.Clone()
			case factors.KindV:
				values[key] = lastV.Clone()
			default:
				values[key] = lastA.Clone()
			}
		}
		last := k == cfg.Steps-1
		if last {
			graph.Add(factors.NewDynamics(sim, factors.Q(k+1), factors.V(k+1), factors.A(k+1)), cfg.Noise.Dyn)
		}
		values[factors.Q(k+1)] = lastQ.Clone()
		values[factors.V(k+1)] = lastV.Clone()
		values[factors.A(k+1)] = lastA.Clone()

		if k%cfg.Every == 0 || last {
			if last && cfg.FinalIters > 0 {
				settings.MaxIterations = cfg.FinalIters
			}
			out, err := Smooth(ctx, graph, values, settings)
			if err != nil {
				return res, errors.Wrapf(err, "step %d", k)
			}
			values = out.Values
			run := EstimateRun{
				Step:         k,
				InitialError: out.InitialError,
				FinalError:   out.FinalError,
				RMSE:         out.RMSE(graph.Len()),
				Iterations:   out.Iterations,
			}
			res.Runs = append(res.Runs, run)
			logger.Infow("optimized", "step", k, "of", cfg.Steps,
				"initial", run.InitialError, "final", run.FinalError, "rmse", run.RMSE, "iterations", run.Iterations)
		}
		lastQ, lastV, lastA = values[factors.Q(k)], values[factors.V(k)], values[factors.A(k)]
	}

	for k := 0; k <= cfg.Steps; k++ {
		res.Q = append(res.Q, values[factors.Q(k)].Clone())
		res.V = append(res.V, values[factors.V(k)].Clone())
		res.A = append(res.A, values[factors.A(k)].Clone())
	}
	res.Values = values
	return res, nil
}
