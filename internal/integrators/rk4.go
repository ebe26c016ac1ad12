package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/linkage/internal/dynamo"
)

// RK4 is the classic fourth order Runge-Kutta method. Stage buffers are
// reused between steps, so an RK4 value must not be shared across
// goroutines.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensure(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	r.ensure(len(x))

	copy(r.k[0], dyn.Derive(x, u, t))
	floats.AddScaledTo(r.stage, x, 0.5*dt, r.k[0])
	copy(r.k[1], dyn.Derive(r.stage, u, t+0.5*dt))
	floats.AddScaledTo(r.stage, x, 0.5*dt, r.k[1])
	copy(r.k[2], dyn.Derive(r.stage, u, t+0.5*dt))
	floats.AddScaledTo(r.stage, x, dt, r.k[2])
	copy(r.k[3], dyn.Derive(r.stage, u, t+dt))

	out := x.Clone()
	h := dt / 6
	floats.AddScaled(out, h, r.k[0])
	floats.AddScaled(out, 2*h, r.k[1])
	floats.AddScaled(out, 2*h, r.k[2])
	floats.AddScaled(out, h, r.k[3])
	return out
}
