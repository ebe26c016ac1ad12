package optim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/logging"
)

// Objective scores one parameter combination; lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

// GridSearch evaluates an objective on the Cartesian product of per
// parameter value lists.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	logger     *zap.SugaredLogger
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d parameters, %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, errors.Wrapf(dynamo.ErrParameterBounds, "empty range for %q", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, logger: logging.Global().Named("grid")}, nil
}

func (g *GridSearch) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		g.logger = l
	}
}

type GridResult struct {
	Best      map[string]float64
	Value     float64
	Evaluated int
	Failed    int
}

// Search walks the grid in odometer order. Failed evaluations are counted
// and skipped; NaN scores count as failures.
func (g *GridSearch) Search(ctx context.Context, obj Objective) (*GridResult, error) {
	res := &GridResult{Value: math.Inf(1)}
	idx := make([]int, len(g.paramNames))

	for {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(dynamo.ErrContextCanceled, err.Error())
		}
		params := make(map[string]float64, len(idx))
		for i, name := range g.paramNames {
			params[name] = g.ranges[i][idx[i]]
		}

		val, err := obj(ctx, params)
		res.Evaluated++
		switch {
		case err != nil || math.IsNaN(val):
			res.Failed++
			g.logger.Debugw("evaluation failed", "params", params, "error", err)
		case val < res.Value:
			res.Value = val
			res.Best = params
		}

		if !g.advance(idx) {
			break
		}
	}
	if res.Best == nil {
		return res, errors.Errorf("optim: all %d grid points failed", res.Evaluated)
	}
	return res, nil
}

func (g *GridSearch) advance(idx []int) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(g.ranges[i]) {
			return true
		}
		idx[i] = 0
	}
	return false
}
