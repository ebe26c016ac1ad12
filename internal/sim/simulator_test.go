package sim

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

type testDynamics struct{}

func (t *testDynamics) Derive(x dynamo.State, u dynamo.Control, time float64) dynamo.State {
	return dynamo.State{-x[0]}
}

func (t *testDynamics) StateDim() int   { return 1 }
func (t *testDynamics) ControlDim() int { return 0 }

type testIntegrator struct{}

func (t *testIntegrator) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, time float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, time)
	return dynamo.State{x[0] + dt*dx[0]}
}

type testController struct{}

func (t *testController) Compute(x dynamo.State, time float64) dynamo.Control {
	return dynamo.Control{}
}

func TestSimulatorRun(t *testing.T) {
	dyn := &testDynamics{}
	integ := &testIntegrator{}
	ctrl := &testController{}

	sim := New(dyn, integ, ctrl)

	cfg := dynamo.Config{
		Dt:       0.1,
		Duration: 1.0,
	}

	x0 := dynamo.State{1.0}
	result, err := sim.Run(context.Background(), x0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}

	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}

	finalState := result.States[len(result.States)-1][0]
	expected := 1.0 * math.Exp(-1.0)
	if math.Abs(finalState-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, finalState)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	dyn := &testDynamics{}
	integ := &testIntegrator{}
	ctrl := &testController{}

	sim := New(dyn, integ, ctrl)

	tests := []struct {
		name string
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.Config{Dt: 0, Duration: 1.0}},
		{"negative dt", dynamo.Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", dynamo.Config{Dt: 0.1, Duration: 0}},
		{"negative duration", dynamo.Config{Dt: 0.1, Duration: -1.0}},
		{"adaptive without tolerance", dynamo.Config{Dt: 0.1, Duration: 1.0, Adaptive: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x0 := dynamo.State{1.0}
			_, err := sim.Run(context.Background(), x0, tt.cfg)
			if !errors.Is(err, dynamo.ErrParameterBounds) {
				t.Errorf("expected ErrParameterBounds, got %v", err)
			}
		})
	}
}

func TestSimulatorDimensionMismatch(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, nil)
	_, err := sim.Run(context.Background(), dynamo.State{1, 2}, dynamo.Config{Dt: 0.1, Duration: 1})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSimulatorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := New(&testDynamics{}, &testIntegrator{}, nil)
	_, err := sim.Run(ctx, dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: 1})
	if !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(x dynamo.State, u dynamo.Control, time float64) {
	t.count++
	t.sum += x[0]
}
func (t *testMetric) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

func TestSimulatorMetrics(t *testing.T) {
	dyn := &testDynamics{}
	integ := &testIntegrator{}
	ctrl := &testController{}

	sim := New(dyn, integ, ctrl)

	metric := &testMetric{}
	sim.AddMetric(metric)

	cfg := dynamo.Config{Dt: 0.1, Duration: 1.0}
	x0 := dynamo.State{1.0}

	result, err := sim.Run(context.Background(), x0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}

	if metric.count != 10 {
		t.Errorf("expected 10 observations, got %d", metric.count)
	}
}

func TestSimulatorAdaptive(t *testing.T) {
	sim := New(&testDynamics{}, &testIntegrator{}, nil)
	cfg := dynamo.Config{Dt: 0.1, Duration: 1, Adaptive: true, Tolerance: 1e-3, MinDt: 1e-6, MaxDt: 0.2}
	result, err := sim.Run(context.Background(), dynamo.State{1}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for i := 1; i < len(result.Times); i++ {
		if result.Times[i] <= result.Times[i-1] {
			t.Fatalf("times not increasing at %d: %v", i, result.Times[i-1:i+1])
		}
	}
}

func TestStatePool(t *testing.T) {
	pool := NewStatePool(4)

	s1 := pool.Get()
	if len(s1) != 4 {
		t.Errorf("Pool returned wrong size: %d", len(s1))
	}

	s1[0] = 1.0
	s1[1] = 2.0
	pool.Put(s1)

	s2 := pool.Get()
	if s2[0] != 0 || s2[1] != 0 {
		t.Error("Pool did not reset state")
	}
}

func TestStatePool_GetAndCopy(t *testing.T) {
	pool := NewStatePool(3)
	src := dynamo.State{1, 2, 3}

	copy := pool.GetAndCopy(src)
	if copy[0] != 1 || copy[1] != 2 || copy[2] != 3 {
		t.Errorf("GetAndCopy failed: got %v", copy)
	}

	copy[0] = 99
	if src[0] == 99 {
		t.Error("GetAndCopy did not create independent copy")
	}
}
