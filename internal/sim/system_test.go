package sim

import (
	"context"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/integrators"
	"github.com/san-kum/linkage/internal/mbs"
	"github.com/san-kum/linkage/internal/metrics"
)

func TestMechanismSystemDerive(t *testing.T) {
	g := NewWithT(t)
	sys, x0 := pendulum(t, false)
	g.Expect(sys.StateDim()).To(Equal(4))
	g.Expect(sys.ControlDim()).To(Equal(2))

	dx := sys.Derive(x0, nil, 0)
	g.Expect(dx).To(HaveLen(4))
	g.Expect(dx[0]).To(BeZero())
	g.Expect(dx[1]).To(BeZero())
	g.Expect(dx[2]).To(BeNumerically("~", 0, 1e-9))
	g.Expect(dx[3]).To(BeNumerically("~", -1.5*9.81, 1e-9))
	g.Expect(sys.Err()).NotTo(HaveOccurred())
}

func TestMechanismSystemDeriveFailure(t *testing.T) {
	g := NewWithT(t)
	sys, _ := pendulum(t, false)

	dx := sys.Derive(dynamo.State{1, 0}, nil, 0)
	g.Expect(dx.IsValid()).To(BeFalse())
	g.Expect(sys.Err()).To(MatchError(dynamo.ErrDimensionMismatch))

	sys.ResetErr()
	g.Expect(sys.Err()).NotTo(HaveOccurred())
}

func TestPendulumEnergyConserved(t *testing.T) {
	g := NewWithT(t)
	sys, x0 := pendulum(t, false)
	g.Expect(sys.Energy(x0)).To(BeNumerically("~", 0, 1e-12))

	s := New(sys, integrators.NewRK4(), nil)
	drift := metrics.NewEnergyDrift(sys)
	s.AddMetric(drift)

	res, err := s.Run(context.Background(), x0, dynamo.Config{Dt: 1e-3, Duration: 1})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Errors).To(BeEmpty())
	g.Expect(res.States).To(HaveLen(1001))
	g.Expect(res.Accelerations).To(HaveLen(len(res.States)))
	g.Expect(res.Metrics).To(HaveKey("energy_drift"))
	g.Expect(drift.Value()).To(BeNumerically("<", 1e-4))

	lowest := 0.0
	for _, q := range res.Positions() {
		lowest = math.Min(lowest, q[1])
	}
	g.Expect(lowest).To(BeNumerically("<", -0.99))
}

func TestProjectorKeepsConstraints(t *testing.T) {
	g := NewWithT(t)
	sys, x0 := pendulum(t, true)
	arm := sys.Model()
	theta, err := arm.CoordinateIndex("theta")
	g.Expect(err).NotTo(HaveOccurred())

	cfg := dynamo.Config{Dt: 1e-3, Duration: 0.5}

	free := New(sys, integrators.NewEuler(), nil)
	res, err := free.Run(context.Background(), x0, cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(phiNorm(arm, res.States[len(res.States)-1])).To(BeNumerically(">", 1e-6))

	projected := New(sys, integrators.NewEuler(), nil)
	projected.SetProjector(NewKinematicProjector(arm, []int{theta}, mbs.DefaultKinematicsParams()))
	res, err = projected.Run(context.Background(), x0, cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Errors).To(BeEmpty())
	for _, x := range res.States {
		g.Expect(phiNorm(arm, x)).To(BeNumerically("<", 1e-8))
	}
	last := res.States[len(res.States)-1]
	g.Expect(last[theta]).To(BeNumerically("<", -0.1))
}

func TestProjectorRejectsDimension(t *testing.T) {
	g := NewWithT(t)
	sys, _ := pendulum(t, true)
	p := NewKinematicProjector(sys.Model(), []int{2}, mbs.DefaultKinematicsParams())
	_, err := p.Project(dynamo.State{1, 2})
	g.Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
}
