// Package dynamics solves constrained forward dynamics with Lagrange
// multipliers:
//
//	[ M    Φ_qᵀ ] [ q̈ ]   [ F ]
//	[ Φ_q   0   ] [ λ ] = [ γ ]
//
// and exposes the same equations as a residual so an outer optimizer can
// treat q̈ as a free variable.
package dynamics

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/mbs"
)

const condLimit = 1e14

type Option func(*Simulator)

// WithBaumgarte enables constraint stabilization: the acceleration rows
// solve Φ̈ + 2αΦ̇ + β²Φ = 0 instead of Φ̈ = 0.
func WithBaumgarte(alpha, beta float64) Option {
	return func(s *Simulator) {
		s.alpha = alpha
		s.beta = beta
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// Simulator evaluates the equations of motion of one assembled model. It
// mutates the model and inherits its lack of thread safety.
type Simulator struct {
	arm      *mbs.AssembledModel
	alpha    float64
	beta     float64
	prepared bool
	n, m     int
	aug      *mat.Dense
	rhs      *mat.VecDense
	forces   []float64
	logger   *zap.SugaredLogger
}

func New(arm *mbs.AssembledModel, opts ...Option) *Simulator {
	s := &Simulator{
		arm:    arm,
		logger: logging.Global().Named("dynamics"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Model() *mbs.AssembledModel { return s.arm }

// Prepare sizes the augmented system. It must run before any solve and
// again if the model is replaced.
func (s *Simulator) Prepare() error {
	s.n = s.arm.NumCoords()
	s.m = s.arm.NumConstraints()
	if s.n == 0 {
		return errors.Wrap(mbs.ErrNoCoordinates, "prepare")
	}
	s.aug = mat.NewDense(s.n+s.m, s.n+s.m, nil)
	s.rhs = mat.NewVecDense(s.n+s.m, nil)
	s.forces = make([]float64, s.n)
	s.prepared = true
	s.logger.Debugw("prepared", "coordinates", s.n, "constraints", s.m, "alpha", s.alpha, "beta", s.beta)
	return nil
}

func (s *Simulator) load(q, dq []float64, u dynamo.Control) error {
	if !s.prepared {
		return ErrNotPrepared
	}
	if len(u) != 0 && len(u) != s.n {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "control has %d entries, model has %d coordinates", len(u), s.n)
	}
	if err := s.arm.SetQ(q); err != nil {
		return err
	}
	if err := s.arm.SetDotQ(dq); err != nil {
		return err
	}
	s.arm.UpdatePhiAndJacobians()
	s.forces = s.arm.GeneralizedForces(s.forces)
	if len(u) > 0 {
		floats.Add(s.forces, u)
	}
	return nil
}

// rightGamma returns γ with the Baumgarte terms applied.
func (s *Simulator) rightGamma() []float64 {
	gamma := s.arm.Gamma()
	if s.alpha == 0 && s.beta == 0 {
		return gamma
	}
	phi, dphi := s.arm.Phi(), s.arm.DotPhi()
	for i := range gamma {
		gamma[i] -= 2*s.alpha*dphi[i] + s.beta*s.beta*phi[i]
	}
	return gamma
}

// SolveDDotQ computes q̈ and λ at (q, q̇) under the generalized control
// forces u, which may be nil. q̈ is also written to the model.
func (s *Simulator) SolveDDotQ(q, dq []float64, u dynamo.Control) (ddq, lambda []float64, err error) {
	if err := s.load(q, dq, u); err != nil {
		return nil, nil, err
	}
	n := s.n

	s.aug.Zero()
	M := s.arm.MassMatrix()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s.aug.Set(i, j, M.At(i, j))
		}
	}
	s.arm.PhiQ().Each(func(r, c int, v float64) {
		s.aug.Set(n+r, c, s.aug.At(n+r, c)+v)
		s.aug.Set(c, n+r, s.aug.At(c, n+r)+v)
	})
	for i := 0; i < n; i++ {
		s.rhs.SetVec(i, s.forces[i])
	}
	for i, g := range s.rightGamma() {
		s.rhs.SetVec(n+i, g)
	}

	var lu mat.LU
	lu.Factorize(s.aug)
	if cond := lu.Cond(); cond > condLimit {
		s.logger.Debugw("singular augmented system", "cond", cond)
		return nil, nil, errors.Wrapf(ErrSingularSystem, "condition number %.3g", cond)
	}
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, s.rhs); err != nil {
		return nil, nil, errors.Wrapf(ErrSingularSystem, "%v", err)
	}
	sol := x.RawVector().Data
	ddq = append([]float64(nil), sol[:n]...)
	lambda = append([]float64(nil), sol[n:]...)
	if err := s.arm.SetDDotQ(ddq); err != nil {
		return nil, nil, err
	}
	return ddq, lambda, nil
}

// ResidualResult holds the dynamics residual M q̈ - F + Φ_qᵀλ and the
// acceleration-level constraint residual Φ_q q̈ - γ.
type ResidualResult struct {
	Dynamics   []float64
	Constraint []float64
	Lambda     []float64
}

// Norm returns the combined 2-norm of both residual blocks.
func (r ResidualResult) Norm() float64 {
	return floats.Norm(append(append([]float64(nil), r.Dynamics...), r.Constraint...), 2)
}

// Residual evaluates the equations of motion at a trial (q, q̇, q̈) without
// solving them. A nil lambda is replaced by the least-squares multipliers,
// those that best balance M q̈ - F.
func (s *Simulator) Residual(q, dq, ddq, lambda []float64) (ResidualResult, error) {
	var res ResidualResult
	if err := s.load(q, dq, nil); err != nil {
		return res, err
	}
	if len(ddq) != s.n {
		return res, errors.Wrapf(dynamo.ErrDimensionMismatch, "ddq has %d entries, model has %d coordinates", len(ddq), s.n)
	}

	M := s.arm.MassMatrix()
	var mddq mat.VecDense
	mddq.MulVec(M, mat.NewVecDense(s.n, append([]float64(nil), ddq...)))
	dyn := make([]float64, s.n)
	floats.SubTo(dyn, mddq.RawVector().Data, s.forces)

	if lambda == nil {
		l, err := s.leastSquaresLambda(dyn)
		if err != nil {
			return res, err
		}
		lambda = l
	} else if len(lambda) != s.m {
		return res, errors.Wrapf(dynamo.ErrDimensionMismatch, "lambda has %d entries, model has %d constraints", len(lambda), s.m)
	}
	floats.Add(dyn, s.arm.PhiQ().MulTransVec(lambda))

	con := s.arm.PhiQ().MulVec(ddq)
	floats.Sub(con, s.rightGamma())

	res.Dynamics = dyn
	res.Constraint = con
	res.Lambda = lambda
	return res, nil
}

// leastSquaresLambda solves min ‖Φ_qᵀλ + r‖ for λ.
func (s *Simulator) leastSquaresLambda(r []float64) ([]float64, error) {
	if s.m == 0 {
		return []float64{}, nil
	}
	phiQ := s.arm.PhiQDense()
	b := make([]float64, len(r))
	for i, v := range r {
		b[i] = -v
	}
	var qr mat.QR
	qr.Factorize(phiQ.T())
	if cond := qr.Cond(); cond > condLimit {
		return nil, errors.Wrapf(ErrSingularSystem, "constraint jacobian condition number %.3g", cond)
	}
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, mat.NewVecDense(len(b), b)); err != nil {
		return nil, errors.Wrapf(ErrSingularSystem, "%v", err)
	}
	return x.RawVector().Data, nil
}

// Reactions returns the generalized constraint forces -Φ_qᵀλ at the
// current configuration.
func (s *Simulator) Reactions(lambda []float64) ([]float64, error) {
	if len(lambda) != s.arm.NumConstraints() {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "lambda has %d entries, model has %d constraints", len(lambda), s.arm.NumConstraints())
	}
	f := s.arm.PhiQ().MulTransVec(lambda)
	floats.Scale(-1, f)
	return f, nil
}
