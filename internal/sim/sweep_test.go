package sim

import (
	"context"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

func TestSweepFullRevolution(t *testing.T) {
	g := NewWithT(t)
	arm := fourBar(t)
	theta, err := arm.CoordinateIndex("theta")
	g.Expect(err).NotTo(HaveOccurred())

	rate := 2 * math.Pi
	res, err := Sweep(context.Background(), arm, SweepConfig{
		Indep: []int{theta},
		Rates: []float64{rate},
		Dt:    0.01,
		Steps: 100,
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Failures).To(BeZero())
	g.Expect(res.Times).To(HaveLen(101))
	g.Expect(res.Q).To(HaveLen(101))

	for k := range res.Times {
		g.Expect(res.Diagnostics[k].PosConverged).To(BeTrue())
		g.Expect(res.DQ[k][theta]).To(BeNumerically("~", rate, 1e-12))
		g.Expect(res.DDQ[k][theta]).To(BeZero())

		q := res.Q[k]
		crank := math.Hypot(q[0], q[1])
		rocker := math.Hypot(q[2]-4, q[3])
		g.Expect(crank).To(BeNumerically("~", 1, 1e-6))
		g.Expect(rocker).To(BeNumerically("~", 3, 1e-6))
		g.Expect(q[3]).To(BeNumerically(">", 0))
	}

	first, last := res.Q[0], res.Q[len(res.Q)-1]
	for i := 0; i < 4; i++ {
		g.Expect(last[i]).To(BeNumerically("~", first[i], 1e-6))
	}

	r := res.AsResult()
	g.Expect(r.States).To(HaveLen(101))
	g.Expect(r.States[0]).To(HaveLen(10))
	g.Expect(r.Metrics).To(HaveKeyWithValue("failures", 0.0))
}

func TestSweepKeepsCallerTolerance(t *testing.T) {
	g := NewWithT(t)
	arm := fourBar(t)
	theta, err := arm.CoordinateIndex("theta")
	g.Expect(err).NotTo(HaveOccurred())

	// a loose tolerance with the iteration limit left unset is accepted as is
	res, err := Sweep(context.Background(), arm, SweepConfig{
		Indep:  []int{theta},
		Rates:  []float64{1},
		Dt:     0.05,
		Steps:  10,
		Params: mbs.KinematicsParams{Tolerance: 10},
	})
	g.Expect(err).NotTo(HaveOccurred())
	for _, d := range res.Diagnostics {
		g.Expect(d.PosConverged).To(BeTrue())
		g.Expect(d.PosIterations).To(BeZero())
	}
}

func TestSweepVelocityMatchesDifferences(t *testing.T) {
	g := NewWithT(t)
	arm := fourBar(t)
	dt := 1e-4
	res, err := Sweep(context.Background(), arm, SweepConfig{
		Indep: []int{4},
		Rates: []float64{1},
		Dt:    dt,
		Steps: 2,
	})
	g.Expect(err).NotTo(HaveOccurred())

	for i := 0; i < 4; i++ {
		central := (res.Q[2][i] - res.Q[0][i]) / (2 * dt)
		g.Expect(res.DQ[1][i]).To(BeNumerically("~", central, 1e-5))
	}
}

func TestSweepValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SweepConfig
		want error
	}{
		{"rate count", SweepConfig{Indep: []int{4}, Rates: nil, Dt: 0.1, Steps: 1}, dynamo.ErrDimensionMismatch},
		{"zero dt", SweepConfig{Indep: []int{4}, Rates: []float64{1}, Dt: 0, Steps: 1}, dynamo.ErrParameterBounds},
		{"bad index", SweepConfig{Indep: []int{9}, Rates: []float64{1}, Dt: 0.1, Steps: 1}, mbs.ErrBadIndependent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			_, err := Sweep(context.Background(), fourBar(t), tt.cfg)
			g.Expect(err).To(MatchError(tt.want))
		})
	}
}

func TestSweepCanceled(t *testing.T) {
	g := NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Sweep(ctx, fourBar(t), SweepConfig{Indep: []int{4}, Rates: []float64{1}, Dt: 0.1, Steps: 10})
	g.Expect(err).To(MatchError(dynamo.ErrContextCanceled))
	g.Expect(res.Times).To(BeEmpty())
}
