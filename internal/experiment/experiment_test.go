package experiment

import (
	"context"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/integrators"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/mbs"
)

func newExperiment(t *testing.T, cfg *config.Config) *Experiment {
	t.Helper()
	e, err := New(cfg, WithLogger(logging.NewTestLogger(t)))
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	return e
}

func TestNewFourBar(t *testing.T) {
	g := NewWithT(t)
	e := newExperiment(t, config.DefaultConfig())

	g.Expect(e.Model().NumCoords()).To(Equal(5))
	g.Expect(e.Independent()).To(Equal([]int{4}))
	g.Expect(e.DriveIndex()).To(Equal(4))
	g.Expect(e.Model().PhiNorm()).To(BeNumerically("<", 1e-9))

	x0 := e.InitialState()
	g.Expect(x0).To(HaveLen(10))
	g.Expect(x0[3]).To(BeNumerically("~", math.Sqrt(9-1.0/9), 1e-6))
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"unknown mechanism", func(c *config.Config) { c.Mechanism = "cam" }, config.ErrUnknownMechanism},
		{"bad dt", func(c *config.Config) { c.Dt = 0 }, dynamo.ErrParameterBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			_, err := New(cfg, WithLogger(logging.NewTestLogger(t)))
			g.Expect(err).To(MatchError(tt.want))
		})
	}
}

func TestDriveCoordinate(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Mechanism = "double_pendulum"

	e := newExperiment(t, cfg)
	g.Expect(e.DriveIndex()).To(Equal(-1))
	g.Expect(e.SweepRates()).To(Equal([]float64{cfg.Drive.Rate, 0}))

	cfg.Controller = "pid"
	_, err := New(cfg, WithLogger(logging.NewTestLogger(t)))
	g.Expect(err).To(HaveOccurred())

	cfg.Drive.Coordinate = "theta2"
	e = newExperiment(t, cfg)
	g.Expect(e.SweepRates()).To(Equal([]float64{0, cfg.Drive.Rate}))
}

func TestSimulatorFromRegistry(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Integrator = "midpoint"
	e := newExperiment(t, cfg)
	_, err := e.Simulator()
	g.Expect(err).To(MatchError(integrators.ErrUnknownIntegrator))

	cfg = config.DefaultConfig()
	cfg.Controller = "bang-bang"
	e = newExperiment(t, cfg)
	_, err = e.Simulator()
	g.Expect(err).To(MatchError(ErrUnknownController))
}

func TestRunPendulum(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("pendulum", "release")
	cfg.Duration = 0.5
	e := newExperiment(t, cfg)

	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Errors).To(BeEmpty())
	g.Expect(res.States).To(HaveLen(501))
	g.Expect(res.Metrics).To(HaveKey("energy"))
	g.Expect(res.Metrics).To(HaveKey("drive_effort"))
	g.Expect(res.Metrics["constraint_violation"]).To(BeNumerically("<", 1e-8))
	g.Expect(res.Metrics["energy_drift"]).To(BeNumerically("<", 1e-2))
}

func TestRunDrivenFourBar(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("fourbar", "driven")
	cfg.Duration = 0.5
	e := newExperiment(t, cfg)

	res, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Errors).To(BeEmpty())
	g.Expect(res.Metrics["drive_effort"]).To(BeNumerically(">", 0))

	last := res.States[len(res.States)-1]
	g.Expect(last[4]).To(BeNumerically(">", e.InitialState()[4]))
}

func TestSweepFourBar(t *testing.T) {
	g := NewWithT(t)
	e := newExperiment(t, config.GetPreset("fourbar", "sweep"))

	res, err := e.Sweep(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Failures).To(BeZero())
	g.Expect(res.Q).To(HaveLen(101))
	first, last := res.Q[0], res.Q[100]
	for i := 0; i < 4; i++ {
		g.Expect(last[i]).To(BeNumerically("~", first[i], 1e-6))
	}

	again, err := e.Sweep(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(again.Q[0]).To(Equal(res.Q[0]))
}

func TestSolveAtAndCheck(t *testing.T) {
	g := NewWithT(t)
	e := newExperiment(t, config.DefaultConfig())
	x := e.InitialState()
	x[9] = 1.5

	ddq, lambda, reactions, err := e.SolveAt(x)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ddq).To(HaveLen(5))
	g.Expect(lambda).To(HaveLen(4))
	g.Expect(reactions).To(HaveLen(5))

	check, err := CheckJacobians(e.Model(), x)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(check.Max()).To(BeNumerically("<", 1e-6))
}

func TestCheckRestoresModel(t *testing.T) {
	g := NewWithT(t)
	e := newExperiment(t, config.DefaultConfig())
	arm := e.Model()
	_, err := arm.ComputeDependentPosVelAcc(e.Independent(), true, true, mbs.DefaultKinematicsParams())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(arm.Stage()).To(Equal(mbs.AccelerationConsistent))
	before := arm.Snapshot()

	x := e.InitialState()
	x[4] += 0.3
	x[9] = 2
	_, err = CheckJacobians(arm, x)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(arm.Stage()).To(Equal(mbs.AccelerationConsistent))
	g.Expect(arm.Q()).To(Equal(before.Q))
	g.Expect(arm.DotQ()).To(Equal(before.DotQ))
	g.Expect(arm.DDotQ()).To(Equal(before.DDotQ))
}

func TestEstimatePendulum(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("pendulum", "release")
	cfg.Dt = 0.01
	cfg.Estimate = config.EstimateConfig{Steps: 4, Every: 2, FinalIters: 50}
	e := newExperiment(t, cfg)

	res, err := e.Estimate(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Q).To(HaveLen(5))
	g.Expect(res.Runs).NotTo(BeEmpty())
	last := res.Runs[len(res.Runs)-1]
	g.Expect(last.FinalError).To(BeNumerically("<=", last.InitialError))
}

func TestTune(t *testing.T) {
	g := NewWithT(t)
	cfg := config.GetPreset("pendulum", "release")
	cfg.Integrator = "euler"
	cfg.Duration = 0.2
	cfg.Kinematics.Project = false

	res, err := Tune(context.Background(), cfg, []string{"beta"}, [][]float64{{0, 10}}, "constraint_violation",
		WithLogger(logging.NewTestLogger(t)))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Evaluated).To(Equal(2))
	g.Expect(res.Best).To(HaveKey("beta"))

	_, err = Tune(context.Background(), cfg, []string{"mass"}, [][]float64{{1}}, "energy")
	g.Expect(err).To(HaveOccurred())
}

func TestRegistryLists(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()
	g.Expect(r.ListControllers()).To(Equal([]string{"none", "pid"}))
	g.Expect(r.ListMechanisms()).To(ContainElement("fourbar"))
	g.Expect(r.ListIntegrators()).To(ContainElement("rk4"))
}
