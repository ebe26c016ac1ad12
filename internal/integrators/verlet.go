package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Verlet is velocity Verlet over a stacked [q; q̇] state. The acceleration
// is re-evaluated at the drifted position with the old velocity, which is
// exact for position-only forces and second order otherwise.
type Verlet struct {
	mid dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	if len(v.mid) != len(x) {
		v.mid = make(dynamo.State, len(x))
	}
	q, dq := x.Split()
	_, a0 := dyn.Derive(x, u, t).Split()
	a0 = a0.Clone()

	out := make(dynamo.State, len(x))
	nq, ndq := out.Split()
	floats.AddScaledTo(nq, q, dt, dq)
	floats.AddScaled(nq, 0.5*dt*dt, a0)

	mq, mdq := v.mid.Split()
	copy(mq, nq)
	copy(mdq, dq)
	_, a1 := dyn.Derive(v.mid, u, t+dt).Split()

	copy(ndq, dq)
	floats.AddScaled(ndq, 0.5*dt, a0)
	floats.AddScaled(ndq, 0.5*dt, a1)
	return out
}

// Leapfrog is the kick-drift-kick form: half velocity kick, full drift,
// half kick with the acceleration at the new position.
type Leapfrog struct {
	mid dynamo.State
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	if len(l.mid) != len(x) {
		l.mid = make(dynamo.State, len(x))
	}
	q, dq := x.Split()
	_, a0 := dyn.Derive(x, u, t).Split()

	mq, mdq := l.mid.Split()
	floats.AddScaledTo(mdq, dq, 0.5*dt, a0)
	floats.AddScaledTo(mq, q, dt, mdq)

	_, a1 := dyn.Derive(l.mid, u, t+dt).Split()

	out := make(dynamo.State, len(x))
	nq, ndq := out.Split()
	copy(nq, mq)
	floats.AddScaledTo(ndq, mdq, 0.5*dt, a1)
	return out
}
