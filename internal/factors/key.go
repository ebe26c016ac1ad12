// Package factors expresses mechanism trajectories as a factor graph: each
// factor maps a few state vectors to a residual and, on request, to the
// jacobian blocks of that residual.
package factors

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Kind is the quantity a key refers to.
type Kind uint8

const (
	KindQ Kind = iota
	KindV
	KindA
)

func (k Kind) String() string {
	switch k {
	case KindQ:
		return "q"
	case KindV:
		return "v"
	case KindA:
		return "a"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Key names one state vector of the trajectory.
type Key struct {
	Kind Kind
	Step int
}

func Q(step int) Key { return Key{KindQ, step} }
func V(step int) Key { return Key{KindV, step} }
func A(step int) Key { return Key{KindA, step} }

func (k Key) String() string { return fmt.Sprintf("%s%d", k.Kind, k.Step) }

// Less orders keys by step, then kind.
func (k Key) Less(o Key) bool {
	if k.Step != o.Step {
		return k.Step < o.Step
	}
	return k.Kind < o.Kind
}

// Values assigns a vector to every key of a graph.
type Values map[Key]dynamo.State

func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, s := range v {
		out[k] = s.Clone()
	}
	return out
}

// Keys returns every key in step-major order.
func (v Values) Keys() []Key {
	keys := make([]Key, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Ordering lists the keys treated as variables, in column order.
type Ordering []Key

// Offsets returns the first column of every key and the total width.
func (o Ordering) Offsets(values Values) (map[Key]int, int, error) {
	offsets := make(map[Key]int, len(o))
	col := 0
	for _, k := range o {
		v, ok := values[k]
		if !ok {
			return nil, 0, errors.Errorf("factors: no value for key %s", k)
		}
		offsets[k] = col
		col += len(v)
	}
	return offsets, col, nil
}

// Flatten packs the ordered values into one vector.
func (o Ordering) Flatten(values Values) []float64 {
	var x []float64
	for _, k := range o {
		x = append(x, values[k]...)
	}
	return x
}

// Unflatten writes x back into a copy of values.
func (o Ordering) Unflatten(values Values, x []float64) Values {
	out := values.Clone()
	pos := 0
	for _, k := range o {
		n := len(out[k])
		copy(out[k], x[pos:pos+n])
		pos += n
	}
	return out
}
