package mbs

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// condLimit is the largest jacobian condition number accepted by the exact
// velocity and acceleration solves.
const condLimit = 1e13

// KinematicsParams tunes the position solver.
type KinematicsParams struct {
	Tolerance     float64
	MaxIterations int
	// Damping is the Tikhonov term μ in (AᵀA + μI)Δ = AᵀΦ.
	Damping   float64
	StepScale float64
}

func DefaultKinematicsParams() KinematicsParams {
	return KinematicsParams{
		Tolerance:     1e-10,
		MaxIterations: 100,
		Damping:       1e-12,
		StepScale:     1.0,
	}
}

// WithDefaults fills the unset (non-positive) fields of p from
// DefaultKinematicsParams and keeps the rest.
func (p KinematicsParams) WithDefaults() KinematicsParams {
	d := DefaultKinematicsParams()
	if p.Tolerance <= 0 {
		p.Tolerance = d.Tolerance
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.Damping <= 0 {
		p.Damping = d.Damping
	}
	if p.StepScale <= 0 {
		p.StepScale = d.StepScale
	}
	return p
}

// KinematicsResult reports what ComputeDependentPosVelAcc achieved. A
// position solve that runs out of iterations is not an error; PosConverged
// is false and q is left at the iterate with the smallest |Φ|.
type KinematicsResult struct {
	PosFinalPhi   float64
	PosIterations int
	PosConverged  bool
	VelSolved     bool
	AccSolved     bool
}

// SplitCoordinates validates indep and returns the remaining dependent
// coordinates in increasing order.
func (m *AssembledModel) SplitCoordinates(indep []int) ([]int, error) {
	n := len(m.q)
	isIndep := make([]bool, n)
	for _, i := range indep {
		if i < 0 || i >= n {
			return nil, errors.Wrapf(ErrBadIndependent, "index %d out of [0,%d)", i, n)
		}
		if isIndep[i] {
			return nil, errors.Wrapf(ErrBadIndependent, "index %d listed twice", i)
		}
		isIndep[i] = true
	}
	dep := make([]int, 0, n-len(indep))
	for i := 0; i < n; i++ {
		if !isIndep[i] {
			dep = append(dep, i)
		}
	}
	return dep, nil
}

// ComputeDependentPosVelAcc makes the state consistent with the constraints
// while holding the independent coordinates indep at their current q, q̇
// and q̈ values.
//
// With solvePos the dependent q is found by damped Gauss-Newton; otherwise q
// is taken as consistent. With solveVel the dependent q̇ solves
// Φ_q q̇ = -Φ_t. The dependent q̈ always solves Φ_q q̈ = γ.
//
// If the position solve does not converge the velocity and acceleration
// stages are skipped and the model stays Uninitialized. Without solvePos the
// velocity and acceleration are still solved, but the stage only advances
// when the given q satisfies Φ within p.Tolerance. A singular jacobian is
// returned as an error wrapping ErrSingularJacobian, a NaN or Inf iterate
// as ErrDiverged.
func (m *AssembledModel) ComputeDependentPosVelAcc(indep []int, solvePos, solveVel bool, p KinematicsParams) (KinematicsResult, error) {
	var res KinematicsResult
	dep, err := m.SplitCoordinates(indep)
	if err != nil {
		return res, err
	}
	p = p.WithDefaults()

	m.stage = Uninitialized
	if solvePos {
		if err := m.solvePositions(dep, p, &res); err != nil {
			return res, err
		}
		if !res.PosConverged {
			m.logger.Debugw("position solve did not converge",
				"phi", res.PosFinalPhi, "iterations", res.PosIterations)
			return res, nil
		}
	} else {
		m.UpdatePhiAndJacobians()
		res.PosFinalPhi = m.PhiNorm()
		res.PosConverged = res.PosFinalPhi < p.Tolerance
	}
	consistent := res.PosConverged
	if consistent {
		m.stage = PositionConsistent
	} else {
		m.logger.Debugw("positions violate the constraints", "phi", res.PosFinalPhi)
	}

	if solveVel {
		// Φ_d q̇_d = -Φ_i q̇_i - Φ_t
		b := m.phiQ.MulVecCols(m.dq, indep)
		for i := range b {
			b[i] = -b[i] - m.phiT[i]
		}
		x, err := solveExact(m.phiQ.DenseCols(dep), b)
		if err != nil {
			return res, errors.Wrap(err, "velocity stage")
		}
		for k := range x {
			m.dq[dep[k]] = x[k]
		}
		res.VelSolved = true
		m.UpdatePhiAndJacobians()
	}
	if consistent {
		m.stage = VelocityConsistent
	}

	// Φ_d q̈_d = γ - Φ_i q̈_i
	b := m.phiQ.MulVecCols(m.ddq, indep)
	gamma := m.Gamma()
	for i := range b {
		b[i] = gamma[i] - b[i]
	}
	x, err := solveExact(m.phiQ.DenseCols(dep), b)
	if err != nil {
		return res, errors.Wrap(err, "acceleration stage")
	}
	for k := range x {
		m.ddq[dep[k]] = x[k]
	}
	res.AccSolved = true
	if consistent {
		m.stage = AccelerationConsistent
	}
	return res, nil
}

func (m *AssembledModel) solvePositions(dep []int, p KinematicsParams, res *KinematicsResult) error {
	best := m.q.Clone()
	bestPhi := math.Inf(1)
	for {
		m.UpdatePhiAndJacobians()
		res.PosFinalPhi = m.PhiNorm()
		if res.PosFinalPhi < p.Tolerance {
			res.PosConverged = true
			return nil
		}
		if res.PosFinalPhi < bestPhi {
			bestPhi = res.PosFinalPhi
			copy(best, m.q)
		}
		if res.PosIterations >= p.MaxIterations {
			if res.PosFinalPhi > bestPhi {
				copy(m.q, best)
				m.UpdatePhiAndJacobians()
				res.PosFinalPhi = bestPhi
			}
			return nil
		}
		delta, err := solveDamped(m.phiQ.DenseCols(dep), m.phi, p.Damping)
		if err != nil {
			return errors.Wrapf(err, "position stage, iteration %d", res.PosIterations)
		}
		for k := range delta {
			m.q[dep[k]] -= p.StepScale * delta[k]
		}
		res.PosIterations++
		if !m.q.IsValid() {
			copy(m.q, best)
			m.UpdatePhiAndJacobians()
			res.PosFinalPhi = bestPhi
			return errors.Wrapf(ErrDiverged, "iteration %d", res.PosIterations)
		}
	}
}

// solveDamped solves (AᵀA + μI)Δ = Aᵀφ by Cholesky, raising μ when the
// factorization fails.
func solveDamped(a *mat.Dense, phi []float64, mu float64) ([]float64, error) {
	if a == nil {
		return nil, nil
	}
	_, d := a.Dims()
	var rhs mat.VecDense
	rhs.MulVec(a.T(), mat.NewVecDense(len(phi), phi))

	if mu <= 0 {
		mu = 1e-12
	}
	for attempt := 0; attempt < 6; attempt++ {
		var ata mat.SymDense
		ata.SymOuterK(1, a.T())
		for i := 0; i < d; i++ {
			ata.SetSym(i, i, ata.At(i, i)+mu)
		}
		var chol mat.Cholesky
		if chol.Factorize(&ata) {
			var dx mat.VecDense
			if err := chol.SolveVecTo(&dx, &rhs); err == nil {
				return dx.RawVector().Data, nil
			}
		}
		mu *= 100
	}
	return nil, errors.Wrap(ErrSingularJacobian, "damped normal equations not positive definite")
}

// solveExact solves A x = b on the dependent columns: LU when square,
// least squares when tall, minimum norm when wide.
func solveExact(a *mat.Dense, b []float64) ([]float64, error) {
	if a == nil {
		return nil, nil
	}
	r, c := a.Dims()
	bv := mat.NewVecDense(r, b)
	var x mat.VecDense
	var cond float64
	var err error
	switch {
	case r == c:
		var lu mat.LU
		lu.Factorize(a)
		cond = lu.Cond()
		if cond <= condLimit {
			err = lu.SolveVecTo(&x, false, bv)
		}
	case r > c:
		var qr mat.QR
		qr.Factorize(a)
		cond = qr.Cond()
		if cond <= condLimit {
			err = qr.SolveVecTo(&x, false, bv)
		}
	default:
		var lq mat.LQ
		lq.Factorize(a)
		cond = lq.Cond()
		if cond <= condLimit {
			err = lq.SolveVecTo(&x, false, bv)
		}
	}
	if cond > condLimit || math.IsNaN(cond) {
		return nil, errors.Wrapf(ErrSingularJacobian, "condition number %.3g", cond)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrSingularJacobian, "%v", err)
	}
	return x.RawVector().Data, nil
}
