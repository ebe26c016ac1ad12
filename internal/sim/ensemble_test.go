package sim

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/integrators"
	"github.com/san-kum/linkage/internal/mbs"
)

func TestEnsembleRun(t *testing.T) {
	g := NewWithT(t)
	build := func(run int, seed int64) (*Simulator, dynamo.State, error) {
		sys, x0 := pendulum(t, false)
		return New(sys, integrators.NewRK4(), nil), x0, nil
	}

	e := NewEnsemble(build, 4, 100)
	e.SetWorkers(2)
	results, err := e.Run(context.Background(), dynamo.Config{Dt: 0.01, Duration: 0.2})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(4))

	want := results[0].States[len(results[0].States)-1]
	for _, r := range results {
		g.Expect(r).NotTo(BeNil())
		g.Expect(r.States[len(r.States)-1]).To(Equal(want))
	}
}

func TestEnsembleFailure(t *testing.T) {
	g := NewWithT(t)
	errBuild := errors.New("no model")
	build := func(run int, seed int64) (*Simulator, dynamo.State, error) {
		if run == 2 {
			return nil, nil, errBuild
		}
		sys, x0 := pendulum(t, false)
		return New(sys, integrators.NewEuler(), nil), x0, nil
	}

	_, err := NewEnsemble(build, 4, 0).Run(context.Background(), dynamo.Config{Dt: 0.01, Duration: 0.1})
	g.Expect(err).To(MatchError(errBuild))
}

func TestSweepAll(t *testing.T) {
	g := NewWithT(t)
	rates := []float64{1, 2, -1}
	job := func(run int) (*mbs.AssembledModel, SweepConfig, error) {
		return fourBar(t), SweepConfig{Indep: []int{4}, Rates: []float64{rates[run]}, Dt: 0.05, Steps: 10}, nil
	}

	results, err := SweepAll(context.Background(), len(rates), 2, job)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(3))
	for i, r := range results {
		g.Expect(r.Failures).To(BeZero())
		g.Expect(r.DQ[0][4]).To(BeNumerically("~", rates[i], 1e-12))
	}
}
