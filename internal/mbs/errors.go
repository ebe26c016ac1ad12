package mbs

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	// ErrFixedOnlyConstraint indicates a constraint whose points are all fixed.
	ErrFixedOnlyConstraint = errors.New("mbs: constraint references only fixed points")

	// ErrDuplicatePoint indicates a constraint or body listing the same point twice.
	ErrDuplicatePoint = errors.New("mbs: point referenced twice")

	// ErrUnknownPoint indicates a point index outside the model.
	ErrUnknownPoint = errors.New("mbs: unknown point")

	// ErrUnknownCoordinate indicates an extra coordinate id or name that does not exist.
	ErrUnknownCoordinate = errors.New("mbs: unknown coordinate")

	// ErrFixedPoint indicates a write or variable-only operation on a fixed point.
	ErrFixedPoint = errors.New("mbs: point is fixed")

	// ErrAlreadyRegistered indicates a constraint whose sparsity was declared twice.
	ErrAlreadyRegistered = errors.New("mbs: constraint sparsity already registered")

	// ErrTooManyConstraints indicates more constraint equations than coordinates.
	ErrTooManyConstraints = errors.New("mbs: more constraint equations than coordinates")

	// ErrNoCoordinates indicates a model without a single variable coordinate.
	ErrNoCoordinates = errors.New("mbs: model has no variable coordinates")

	// ErrDegenerateBody indicates a body with non-positive length or repeated points.
	ErrDegenerateBody = errors.New("mbs: degenerate body")

	// ErrBadIndependent indicates an invalid independent coordinate set.
	ErrBadIndependent = errors.New("mbs: invalid independent coordinates")

	// ErrSingularJacobian indicates a kinematically singular configuration.
	ErrSingularJacobian = errors.New("mbs: singular constraint jacobian")

	// ErrDiverged indicates a position iterate with NaN or Inf entries.
	ErrDiverged = errors.New("mbs: position iterate diverged")
)

// ConfigError aggregates every problem found while assembling a model.
type ConfigError struct {
	Errs error
}

func (e *ConfigError) Error() string {
	return "mbs: invalid model: " + e.Errs.Error()
}

func (e *ConfigError) Unwrap() []error {
	return multierr.Errors(e.Errs)
}
