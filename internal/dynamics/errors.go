package dynamics

import "github.com/pkg/errors"

var (
	// ErrNotPrepared indicates a solve before Prepare.
	ErrNotPrepared = errors.New("dynamics: simulator not prepared")

	// ErrSingularSystem indicates an ill-conditioned augmented matrix, usually a
	// kinematic singularity or redundant constraints.
	ErrSingularSystem = errors.New("dynamics: singular augmented system")
)
