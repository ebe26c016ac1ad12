package experiment

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

// JacobianCheck compares the analytic constraint jacobians with central
// differences at one state.
type JacobianCheck struct {
	// PhiQ is max |Φ_q - ∂Φ/∂q|.
	PhiQ float64
	// DotPhiQ is max |Φ̇_q - ∂Φ̇/∂q|.
	DotPhiQ float64
	// DPhiqdq is max |∂(Φ_q q̇)/∂q - fd|.
	DPhiqdq float64
	// Velocity is max |Φ̇ - Φ_q q̇|.
	Velocity float64
}

// Max returns the largest discrepancy.
func (c JacobianCheck) Max() float64 {
	return math.Max(math.Max(c.PhiQ, c.DotPhiQ), math.Max(c.DPhiqdq, c.Velocity))
}

// CheckJacobians evaluates the check at x = [q; q̇] and restores the
// model's previous state, stage included.
func CheckJacobians(arm *mbs.AssembledModel, x dynamo.State) (c JacobianCheck, err error) {
	saved := arm.Snapshot()
	defer func() {
		if rerr := arm.Restore(saved); rerr != nil && err == nil {
			err = errors.Wrap(rerr, "restore state")
		}
	}()

	q, dq := x.Split()
	if err := arm.SetQ(q); err != nil {
		return JacobianCheck{}, err
	}
	if err := arm.SetDotQ(dq); err != nil {
		return JacobianCheck{}, err
	}
	arm.UpdatePhiAndJacobians()

	if arm.NumConstraints() == 0 {
		return c, nil
	}
	phiQ := arm.PhiQDense()
	dotPhiQ := arm.DotPhiQDense()
	dPhiqdq := arm.DPhiqdqDense()

	phiQv := mat.NewVecDense(len(dq), append([]float64(nil), dq...))
	var prod mat.VecDense
	prod.MulVec(phiQ, phiQv)
	for i, v := range arm.DotPhi() {
		c.Velocity = math.Max(c.Velocity, math.Abs(v-prod.AtVec(i)))
	}

	settings := &fd.JacobianSettings{Formula: fd.Central, Step: 1e-6}
	numeric := func(eval func() []float64) *mat.Dense {
		dst := mat.NewDense(arm.NumConstraints(), len(q), nil)
		fd.Jacobian(dst, func(y, xq []float64) {
			_ = arm.SetQ(xq)
			arm.UpdatePhiAndJacobians()
			copy(y, eval())
		}, q, settings)
		_ = arm.SetQ(q)
		arm.UpdatePhiAndJacobians()
		return dst
	}

	c.PhiQ = maxAbsDiff(phiQ, numeric(arm.Phi))
	c.DotPhiQ = maxAbsDiff(dotPhiQ, numeric(arm.DotPhi))
	c.DPhiqdq = maxAbsDiff(dPhiqdq, numeric(func() []float64 {
		var v mat.VecDense
		v.MulVec(arm.PhiQDense(), phiQv)
		return v.RawVector().Data
	}))
	return c, nil
}

func maxAbsDiff(a, b *mat.Dense) float64 {
	r, c := a.Dims()
	var worst float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			worst = math.Max(worst, math.Abs(a.At(i, j)-b.At(i, j)))
		}
	}
	return worst
}
