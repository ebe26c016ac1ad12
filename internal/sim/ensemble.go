package sim

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

// Factory builds a fresh simulator and initial state for one run. Every run
// must get its own model; models are not safe for concurrent use.
type Factory func(run int, seed int64) (*Simulator, dynamo.State, error)

type Ensemble struct {
	build     Factory
	numRuns   int
	seedStart int64
	workers   int
}

func NewEnsemble(build Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, seedStart: seedStart, workers: runtime.GOMAXPROCS(0)}
}

// SetWorkers bounds the number of concurrent runs.
func (e *Ensemble) SetWorkers(n int) {
	if n > 0 {
		e.workers = n
	}
}

// Run executes every run and returns the results in run order. The first
// failure cancels the remaining runs.
func (e *Ensemble) Run(ctx context.Context, cfg dynamo.Config) ([]*dynamo.Result, error) {
	results := make([]*dynamo.Result, e.numRuns)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < e.numRuns; i++ {
		idx := i
		g.Go(func() error {
			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			s, x0, err := e.build(idx, cfgCopy.Seed)
			if err != nil {
				return errors.Wrapf(err, "build run %d", idx)
			}
			res, err := s.Run(ctx, x0, cfgCopy)
			if err != nil {
				return errors.Wrapf(err, "run %d", idx)
			}
			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SweepJob builds a private model and sweep configuration for one run.
type SweepJob func(run int) (*mbs.AssembledModel, SweepConfig, error)

// SweepAll runs n independent sweeps on at most workers goroutines.
func SweepAll(ctx context.Context, n, workers int, job SweepJob) ([]*SweepResult, error) {
	results := make([]*SweepResult, n)
	g, ctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			arm, cfg, err := job(idx)
			if err != nil {
				return errors.Wrapf(err, "build sweep %d", idx)
			}
			res, err := Sweep(ctx, arm, cfg)
			if err != nil {
				return errors.Wrapf(err, "sweep %d", idx)
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
