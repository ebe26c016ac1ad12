package factors

import (
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Noise scales residual rows by the inverse of their standard deviation.
type Noise interface {
	// Scales returns 1/σ for each of dim rows.
	Scales(dim int) ([]float64, error)
}

// Isotropic uses one σ for every row.
type Isotropic struct {
	Sigma float64
}

func NewIsotropic(sigma float64) Isotropic { return Isotropic{Sigma: sigma} }

func (n Isotropic) Scales(dim int) ([]float64, error) {
	if n.Sigma <= 0 {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "sigma %g", n.Sigma)
	}
	s := make([]float64, dim)
	for i := range s {
		s[i] = 1 / n.Sigma
	}
	return s, nil
}

// Diagonal uses one σ per row.
type Diagonal struct {
	Sigmas []float64
}

func NewDiagonal(sigmas ...float64) Diagonal { return Diagonal{Sigmas: sigmas} }

func (n Diagonal) Scales(dim int) ([]float64, error) {
	if len(n.Sigmas) != dim {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d sigmas for %d rows", len(n.Sigmas), dim)
	}
	s := make([]float64, dim)
	for i, sigma := range n.Sigmas {
		if sigma <= 0 {
			return nil, errors.Wrapf(dynamo.ErrParameterBounds, "sigma[%d] = %g", i, sigma)
		}
		s[i] = 1 / sigma
	}
	return s, nil
}
