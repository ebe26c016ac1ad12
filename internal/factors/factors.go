package factors

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

// Evaluation is a factor residual with one jacobian block per key, in
// Keys() order. Jacobians is nil unless requested.
type Evaluation struct {
	Error     []float64
	Jacobians []*mat.Dense
}

type Factor interface {
	Keys() []Key
	Dim() int
	Evaluate(values Values, withJacobians bool) (Evaluation, error)
}

func lookup(values Values, keys ...Key) ([]dynamo.State, error) {
	out := make([]dynamo.State, len(keys))
	for i, k := range keys {
		v, ok := values[k]
		if !ok {
			return nil, errors.Errorf("factors: no value for key %s", k)
		}
		out[i] = v
	}
	return out, nil
}

func identity(n int, scale float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, scale)
	}
	return d
}

// Constraints penalizes Φ(q).
type Constraints struct {
	arm *mbs.AssembledModel
	q   Key
}

func NewConstraints(arm *mbs.AssembledModel, q Key) *Constraints {
	return &Constraints{arm: arm, q: q}
}

func (f *Constraints) Keys() []Key { return []Key{f.q} }
func (f *Constraints) Dim() int    { return f.arm.NumConstraints() }

func (f *Constraints) Evaluate(values Values, withJacobians bool) (Evaluation, error) {
	v, err := lookup(values, f.q)
	if err != nil {
		return Evaluation{}, err
	}
	if err := f.arm.SetQ(v[0]); err != nil {
		return Evaluation{}, errors.Wrapf(err, "constraints %s", f.q)
	}
	f.arm.UpdatePhiAndJacobians()
	ev := Evaluation{Error: f.arm.Phi()}
	if withJacobians {
		ev.Jacobians = []*mat.Dense{f.arm.PhiQDense()}
	}
	return ev, nil
}

// ConstraintsVel penalizes Φ_q q̇. Its q jacobian is ∂(Φ_q q̇)/∂q and its q̇
// jacobian is Φ_q.
type ConstraintsVel struct {
	arm  *mbs.AssembledModel
	q, v Key
}

func NewConstraintsVel(arm *mbs.AssembledModel, q, v Key) *ConstraintsVel {
	return &ConstraintsVel{arm: arm, q: q, v: v}
}

func (f *ConstraintsVel) Keys() []Key { return []Key{f.q, f.v} }
func (f *ConstraintsVel) Dim() int    { return f.arm.NumConstraints() }

func (f *ConstraintsVel) Evaluate(values Values, withJacobians bool) (Evaluation, error) {
	v, err := lookup(values, f.q, f.v)
	if err != nil {
		return Evaluation{}, err
	}
	if err := f.arm.SetQ(v[0]); err != nil {
		return Evaluation{}, errors.Wrapf(err, "constraints vel %s", f.q)
	}
	if err := f.arm.SetDotQ(v[1]); err != nil {
		return Evaluation{}, errors.Wrapf(err, "constraints vel %s", f.v)
	}
	f.arm.UpdatePhiAndJacobians()
	ev := Evaluation{Error: f.arm.PhiQ().MulVec(v[1])}
	if withJacobians {
		ev.Jacobians = []*mat.Dense{f.arm.DPhiqdqDense(), f.arm.PhiQDense()}
	}
	return ev, nil
}

// Dynamics penalizes q̈ - q̈*(q, q̇), where q̈* is the forward dynamics
// solution. The q and q̇ jacobians are central differences.
type Dynamics struct {
	sim     *dynamics.Simulator
	q, v, a Key
}

func NewDynamics(sim *dynamics.Simulator, q, v, a Key) *Dynamics {
	return &Dynamics{sim: sim, q: q, v: v, a: a}
}

func (f *Dynamics) Keys() []Key { return []Key{f.q, f.v, f.a} }
func (f *Dynamics) Dim() int    { return f.sim.Model().NumCoords() }

func (f *Dynamics) Evaluate(values Values, withJacobians bool) (Evaluation, error) {
	v, err := lookup(values, f.q, f.v, f.a)
	if err != nil {
		return Evaluation{}, err
	}
	q, dq, ddq := v[0], v[1], v[2]
	if len(ddq) != len(q) {
		return Evaluation{}, errors.Wrapf(dynamo.ErrDimensionMismatch, "dynamics %s", f.a)
	}
	want, _, err := f.sim.SolveDDotQ(q, dq, nil)
	if err != nil {
		return Evaluation{}, errors.Wrapf(err, "dynamics %s", f.q)
	}
	n := len(q)
	ev := Evaluation{Error: make([]float64, n)}
	for i := range ddq {
		ev.Error[i] = ddq[i] - want[i]
	}
	if !withJacobians {
		return ev, nil
	}

	var solveErr error
	jac := func(wrtQ bool) *mat.Dense {
		dst := mat.NewDense(n, n, nil)
		x0 := q
		if !wrtQ {
			x0 = dq
		}
		fd.Jacobian(dst, func(y, x []float64) {
			qq, vv := q, dq
			if wrtQ {
				qq = x
			} else {
				vv = x
			}
			acc, _, err := f.sim.SolveDDotQ(qq, vv, nil)
			if err != nil {
				if solveErr == nil {
					solveErr = err
				}
				for i := range y {
					y[i] = 0
				}
				return
			}
			for i := range y {
				y[i] = -acc[i]
			}
		}, x0.Clone(), &fd.JacobianSettings{Formula: fd.Central})
		return dst
	}
	hq, hv := jac(true), jac(false)
	if solveErr != nil {
		return Evaluation{}, errors.Wrapf(solveErr, "dynamics jacobian %s", f.q)
	}
	ev.Jacobians = []*mat.Dense{hq, hv, identity(n, 1)}
	return ev, nil
}

// TrapInt links two steps with the trapezoidal rule:
//
//	x1 - x0 - dt/2 (v0 + v1)
type TrapInt struct {
	dt             float64
	dim            int
	x0, x1, v0, v1 Key
}

func NewTrapInt(dt float64, dim int, x0, x1, v0, v1 Key) *TrapInt {
	return &TrapInt{dt: dt, dim: dim, x0: x0, x1: x1, v0: v0, v1: v1}
}

func (f *TrapInt) Keys() []Key { return []Key{f.x0, f.x1, f.v0, f.v1} }
func (f *TrapInt) Dim() int    { return f.dim }

func (f *TrapInt) Evaluate(values Values, withJacobians bool) (Evaluation, error) {
	v, err := lookup(values, f.x0, f.x1, f.v0, f.v1)
	if err != nil {
		return Evaluation{}, err
	}
	n := f.dim
	for i, s := range v {
		if len(s) != n {
			return Evaluation{}, errors.Wrapf(dynamo.ErrDimensionMismatch, "trapezoidal %s", f.Keys()[i])
		}
	}
	h := f.dt / 2
	ev := Evaluation{Error: make([]float64, n)}
	for i := 0; i < n; i++ {
		ev.Error[i] = v[1][i] - v[0][i] - h*(v[2][i]+v[3][i])
	}
	if withJacobians {
		ev.Jacobians = []*mat.Dense{identity(n, -1), identity(n, 1), identity(n, -h), identity(n, -h)}
	}
	return ev, nil
}

// Prior anchors one key to a value.
type Prior struct {
	key   Key
	value dynamo.State
}

func NewPrior(key Key, value dynamo.State) *Prior {
	return &Prior{key: key, value: value.Clone()}
}

func (f *Prior) Keys() []Key { return []Key{f.key} }
func (f *Prior) Dim() int    { return len(f.value) }

func (f *Prior) Evaluate(values Values, withJacobians bool) (Evaluation, error) {
	v, err := lookup(values, f.key)
	if err != nil {
		return Evaluation{}, err
	}
	if len(v[0]) != len(f.value) {
		return Evaluation{}, errors.Wrapf(dynamo.ErrDimensionMismatch, "prior %s", f.key)
	}
	ev := Evaluation{Error: v[0].Sub(f.value)}
	if withJacobians {
		ev.Jacobians = []*mat.Dense{identity(len(f.value), 1)}
	}
	return ev, nil
}
