package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Euler is the explicit first order method. It drifts off the constraint
// manifold quickly and is mostly useful paired with a projector.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	out := make(dynamo.State, len(x))
	floats.AddScaledTo(out, x, dt, dx)
	return out
}

// SemiImplicitEuler updates velocities first and moves positions with the
// new velocities. The state must be a stacked [q; q̇] vector.
type SemiImplicitEuler struct{}

func NewSemiImplicitEuler() *SemiImplicitEuler {
	return &SemiImplicitEuler{}
}

func (e *SemiImplicitEuler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	out := make(dynamo.State, len(x))
	q, dq := x.Split()
	nq, ndq := out.Split()
	_, ddq := dx.Split()
	floats.AddScaledTo(ndq, dq, dt, ddq)
	floats.AddScaledTo(nq, q, dt, ndq)
	return out
}

// Trapezoidal is Heun's predictor-corrector, second order.
type Trapezoidal struct {
	pred dynamo.State
}

func NewTrapezoidal() *Trapezoidal {
	return &Trapezoidal{}
}

func (h *Trapezoidal) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	if len(h.pred) != len(x) {
		h.pred = make(dynamo.State, len(x))
	}
	k1 := dyn.Derive(x, u, t).Clone()
	floats.AddScaledTo(h.pred, x, dt, k1)
	k2 := dyn.Derive(h.pred, u, t+dt)

	out := x.Clone()
	floats.AddScaled(out, 0.5*dt, k1)
	floats.AddScaled(out, 0.5*dt, k2)
	return out
}
