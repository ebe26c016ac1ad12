package analysis

import (
	"math"

	"github.com/san-kum/linkage/internal/dynamo"
)

// ClosureReport measures how well a cyclic trajectory returns to its start.
type ClosureReport struct {
	// Gap is ‖q_last - q_first‖ over the compared coordinates.
	Gap float64
	// MaxStep is the largest ‖q_k+1 - q_k‖, a branch jump shows up here.
	MaxStep float64
	// MaxStepAt is the index k of MaxStep.
	MaxStepAt int
}

// Closure compares the given coordinates; nil compares all of them.
func Closure(q []dynamo.State, coords []int) ClosureReport {
	var r ClosureReport
	if len(q) < 2 {
		return r
	}
	if coords == nil {
		coords = make([]int, len(q[0]))
		for i := range coords {
			coords[i] = i
		}
	}
	dist := func(a, b dynamo.State) float64 {
		var s float64
		for _, i := range coords {
			d := a[i] - b[i]
			s += d * d
		}
		return math.Sqrt(s)
	}
	r.Gap = dist(q[len(q)-1], q[0])
	for k := 1; k < len(q); k++ {
		if d := dist(q[k], q[k-1]); d > r.MaxStep {
			r.MaxStep, r.MaxStepAt = d, k-1
		}
	}
	return r
}
