package experiment

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/optim"
)

// Tunable names the run settings a grid search may vary.
var Tunable = map[string]func(*config.Config, float64){
	"kp":    func(c *config.Config, v float64) { c.Drive.Kp = v },
	"ki":    func(c *config.Config, v float64) { c.Drive.Ki = v },
	"kd":    func(c *config.Config, v float64) { c.Drive.Kd = v },
	"alpha": func(c *config.Config, v float64) { c.Baumgarte.Alpha = v },
	"beta":  func(c *config.Config, v float64) { c.Baumgarte.Beta = v },
	"dt":    func(c *config.Config, v float64) { c.Dt = v },
}

// Tune grid-searches the named settings and minimises a run metric such as
// constraint_violation or energy_drift. Every grid point assembles its own
// model.
func Tune(ctx context.Context, base *config.Config, names []string, ranges [][]float64, metric string, opts ...Option) (*optim.GridResult, error) {
	for _, name := range names {
		if _, ok := Tunable[name]; !ok {
			return nil, errors.Errorf("experiment: %q is not tunable", name)
		}
	}
	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return nil, err
	}

	return gs.Search(ctx, func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg := *base
		for name, v := range params {
			Tunable[name](&cfg, v)
		}
		exp, err := New(&cfg, opts...)
		if err != nil {
			return math.NaN(), err
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return math.NaN(), err
		}
		if len(res.Errors) > 0 {
			return math.NaN(), res.Errors[0]
		}
		v, ok := res.Metrics[metric]
		if !ok {
			return math.NaN(), errors.Errorf("experiment: run has no metric %q", metric)
		}
		return v, nil
	})
}
