package integrators

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Dormand-Prince 5(4) tableau. The last row of dpA equals dpB (FSAL).
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	dpB  = [7]float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0}
	dpB4 = [7]float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40}
)

// RK45 is the embedded Dormand-Prince pair with step size control.
type RK45 struct {
	Safety   float64
	MinScale float64
	MaxScale float64

	k     [7]dynamo.State
	stage dynamo.State
}

func NewRK45() *RK45 {
	return &RK45{Safety: 0.9, MinScale: 0.2, MaxScale: 10}
}

// Step takes one fifth order step of size dt with no step control.
func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	out, _ := r.stages(dyn, x, u, t, dt)
	return out
}

// StepAdaptive takes a step of size dt and proposes the next step size from
// the embedded error estimate, measured relative to |x|+|dt·ẋ|.
func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	out, errMax := r.stages(dyn, x, u, t, dt)
	if !out.IsValid() {
		return nil, 0, dynamo.ErrUnstable
	}
	ratio := errMax / tol
	switch {
	case ratio == 0:
		return out, dt * r.MaxScale, nil
	case ratio > 1:
		return out, dt * math.Max(r.MinScale, r.Safety*math.Pow(ratio, -0.25)), nil
	default:
		return out, dt * math.Min(r.MaxScale, r.Safety*math.Pow(ratio, -0.2)), nil
	}
}

func (r *RK45) stages(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) (dynamo.State, float64) {
	n := len(x)
	if len(r.stage) != n {
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.stage = make(dynamo.State, n)
	}

	copy(r.k[0], dyn.Derive(x, u, t))
	for s := 1; s < 7; s++ {
		copy(r.stage, x)
		for j := 0; j < s; j++ {
			if dpA[s][j] != 0 {
				floats.AddScaled(r.stage, dt*dpA[s][j], r.k[j])
			}
		}
		copy(r.k[s], dyn.Derive(r.stage, u, t+dpC[s]*dt))
	}

	out := r.stage.Clone()
	errMax := 0.0
	for i := 0; i < n; i++ {
		var e float64
		for s := range dpB {
			e += (dpB[s] - dpB4[s]) * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*e)/scale)
	}
	return out, errMax
}
