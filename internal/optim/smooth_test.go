package optim

import (
	"context"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/factors"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/mbs"
)

func newPendulumSim(t *testing.T) *dynamics.Simulator {
	t.Helper()
	d := mbs.NewModelDefinition()
	o := d.AddFixedPoint("O", 0, 0)
	p := d.AddPoint("P", 1, 0)
	d.AddConstantDistance(o, p)
	d.AddBar("bar", o, p, 1)
	arm, err := d.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	sim := dynamics.New(arm)
	if err := sim.Prepare(); err != nil {
		t.Fatal(err)
	}
	return sim
}

func TestSmoothLinearChain(t *testing.T) {
	g := NewWithT(t)
	graph := factors.NewGraph()
	graph.Add(factors.NewPrior(factors.Q(0), dynamo.State{0}), factors.NewIsotropic(0.01))
	graph.Add(factors.NewPrior(factors.V(0), dynamo.State{1}), factors.NewIsotropic(0.01))
	graph.Add(factors.NewPrior(factors.V(1), dynamo.State{1}), factors.NewIsotropic(0.01))
	graph.Add(factors.NewTrapInt(0.5, 1, factors.Q(0), factors.Q(1), factors.V(0), factors.V(1)), nil)
	values := factors.Values{
		factors.Q(0): {3},
		factors.Q(1): {-2},
		factors.V(0): {0},
		factors.V(1): {0},
	}

	s := DefaultSettings()
	s.Logger = logging.NewTestLogger(t)
	res, err := Smooth(context.Background(), graph, values, s)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.FinalError).To(BeNumerically("<", res.InitialError))
	g.Expect(res.FinalError).To(BeNumerically("<", 1e-6))
	g.Expect(res.Values[factors.Q(1)][0]).To(BeNumerically("~", 0.5, 1e-4))
	// the input is untouched
	g.Expect(values[factors.Q(0)][0]).To(Equal(3.0))
}

func TestSmoothHonorsFixedKeys(t *testing.T) {
	g := NewWithT(t)
	graph := factors.NewGraph()
	graph.Add(factors.NewPrior(factors.Q(0), dynamo.State{1}), nil)
	graph.Add(factors.NewPrior(factors.Q(1), dynamo.State{1}), nil)
	values := factors.Values{factors.Q(0): {0}, factors.Q(1): {0}}

	s := DefaultSettings()
	s.Fixed = []factors.Key{factors.Q(0)}
	res, err := Smooth(context.Background(), graph, values, s)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Values[factors.Q(0)][0]).To(Equal(0.0))
	g.Expect(res.Values[factors.Q(1)][0]).To(BeNumerically("~", 1, 1e-6))
}

func TestSmoothCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	graph := factors.NewGraph()
	graph.Add(factors.NewPrior(factors.Q(0), dynamo.State{1}), nil)
	_, err := Smooth(ctx, graph, factors.Values{factors.Q(0): {0}}, DefaultSettings())
	if err == nil {
		t.Error("expected an error from a canceled context")
	}
}

func TestBuildTrajectoryGraph(t *testing.T) {
	g := NewWithT(t)
	sim := newPendulumSim(t)
	q0 := sim.Model().Q().Clone()
	noise := DefaultTrajectoryNoise(2, []int{1})

	graph, values := BuildTrajectoryGraph(sim, q0, 3, 0.01, noise)
	// 2 priors, 5 factors per step, final dynamics
	g.Expect(graph.Len()).To(Equal(2 + 3*5 + 1))
	g.Expect(values).To(HaveLen(3 * 4))

	e, err := graph.Error(values)
	g.Expect(err).NotTo(HaveOccurred())
	// at rest the only violated factors are the dynamics ones
	g.Expect(e).To(BeNumerically(">", 0))
}

func TestEstimateReducesError(t *testing.T) {
	g := NewWithT(t)
	sim := newPendulumSim(t)
	q0 := sim.Model().Q().Clone()

	settings := DefaultSettings()
	settings.MaxIterations = 50
	res, err := Estimate(context.Background(), sim, q0, EstimateConfig{
		Dt:       0.01,
		Steps:    4,
		Every:    2,
		Noise:    DefaultTrajectoryNoise(2, []int{1}),
		Settings: settings,
		Logger:   logging.NewTestLogger(t),
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(res.Q).To(HaveLen(5))
	g.Expect(res.A).To(HaveLen(5))
	g.Expect(res.Runs).To(HaveLen(3))
	for _, run := range res.Runs {
		g.Expect(run.FinalError).To(BeNumerically("<=", run.InitialError))
	}
	// the bar starts falling
	g.Expect(res.A[0][1]).To(BeNumerically("<", 0))
}
