// Package optim fits trajectories to a factor graph. The optimizer itself
// is gonum's LBFGS on ½‖r‖², used as a black box.
package optim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/linkage/internal/factors"
	"github.com/san-kum/linkage/internal/logging"
)

type Settings struct {
	MaxIterations     int
	GradientThreshold float64
	// Fixed keys keep their initial values.
	Fixed  []factors.Key
	Logger *zap.SugaredLogger
}

func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     200,
		GradientThreshold: 1e-8,
	}
}

type Result struct {
	Values       factors.Values
	InitialError float64
	FinalError   float64
	Iterations   int
	FuncEvals    int
	Status       string
}

// RMSE returns sqrt(FinalError / factors), the figure the smoother reports.
func (r *Result) RMSE(numFactors int) float64 {
	if numFactors == 0 {
		return 0
	}
	return math.Sqrt(r.FinalError / float64(numFactors))
}

// ctxRecorder stops the optimizer once ctx is done.
type ctxRecorder struct {
	ctx context.Context
}

func (r ctxRecorder) Init() error { return r.ctx.Err() }

func (r ctxRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}

// Smooth minimizes the graph error over every key of values except
// s.Fixed. values is not modified.
func Smooth(ctx context.Context, graph *factors.Graph, values factors.Values, s Settings) (*Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.Global().Named("optim")
	}
	fixed := make(map[factors.Key]bool, len(s.Fixed))
	for _, k := range s.Fixed {
		fixed[k] = true
	}
	var ordering factors.Ordering
	for _, k := range values.Keys() {
		if !fixed[k] {
			ordering = append(ordering, k)
		}
	}

	initial, err := graph.Error(values)
	if err != nil {
		return nil, errors.Wrap(err, "initial error")
	}
	out := &Result{Values: values.Clone(), InitialError: initial, FinalError: initial}
	if len(ordering) == 0 || graph.Len() == 0 {
		out.Status = "NothingToOptimize"
		return out, nil
	}

	var evalErr error
	keep := func(err error) {
		if evalErr == nil {
			evalErr = err
		}
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			e, err := graph.Error(ordering.Unflatten(values, x))
			if err != nil {
				keep(err)
				return math.Inf(1)
			}
			return e
		},
		Grad: func(grad, x []float64) {
			J, r, err := graph.Linearize(ordering.Unflatten(values, x), ordering)
			if err != nil {
				keep(err)
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			var g mat.VecDense
			g.MulVec(J.T(), mat.NewVecDense(len(r), r))
			copy(grad, g.RawVector().Data)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: s.GradientThreshold,
		MajorIterations:   s.MaxIterations,
		Recorder:          ctxRecorder{ctx: ctx},
	}

	res, err := optimize.Minimize(problem, ordering.Flatten(values), settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, errors.Wrap(ctxErr, "smooth")
	}
	if res == nil {
		return out, errors.Wrap(err, "smooth")
	}
	if evalErr != nil && math.IsInf(res.F, 1) {
		return out, errors.Wrap(evalErr, "smooth")
	}
	if err != nil {
		logger.Debugw("optimizer stopped", "status", res.Status, "error", err)
	}

	out.Values = ordering.Unflatten(values, res.X)
	out.FinalError = res.F
	out.Iterations = res.MajorIterations
	out.FuncEvals = res.FuncEvaluations
	out.Status = res.Status.String()
	logger.Debugw("smoothed",
		"variables", len(res.X), "initial", initial, "final", out.FinalError,
		"iterations", out.Iterations, "status", out.Status)
	return out, nil
}
