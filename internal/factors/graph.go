package factors

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type entry struct {
	factor Factor
	noise  Noise
}

// Graph is a sum of squared whitened factor residuals.
type Graph struct {
	entries []entry
}

func NewGraph() *Graph { return &Graph{} }

// Add appends a factor. A nil noise means unit σ.
func (g *Graph) Add(f Factor, noise Noise) {
	g.entries = append(g.entries, entry{factor: f, noise: noise})
}

func (g *Graph) Len() int { return len(g.entries) }

func (g *Graph) Factors() []Factor {
	out := make([]Factor, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.factor
	}
	return out
}

// Dim returns the total number of residual rows.
func (g *Graph) Dim() int {
	n := 0
	for _, e := range g.entries {
		n += e.factor.Dim()
	}
	return n
}

func (g *Graph) whitened(i int, values Values, withJacobians bool) (Evaluation, error) {
	e := g.entries[i]
	ev, err := e.factor.Evaluate(values, withJacobians)
	if err != nil {
		return ev, errors.Wrapf(err, "factor %d", i)
	}
	if e.noise == nil {
		return ev, nil
	}
	scales, err := e.noise.Scales(len(ev.Error))
	if err != nil {
		return ev, errors.Wrapf(err, "factor %d noise", i)
	}
	for r, s := range scales {
		ev.Error[r] *= s
	}
	for _, h := range ev.Jacobians {
		if h == nil {
			continue
		}
		rows, cols := h.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				h.Set(r, c, h.At(r, c)*scales[r])
			}
		}
	}
	return ev, nil
}

// Error returns ½ Σ ‖whitened residual‖².
func (g *Graph) Error(values Values) (float64, error) {
	total := 0.0
	for i := range g.entries {
		ev, err := g.whitened(i, values, false)
		if err != nil {
			return 0, err
		}
		for _, r := range ev.Error {
			total += r * r
		}
	}
	return 0.5 * total, nil
}

// FactorErrors returns ½‖whitened residual‖² per factor.
func (g *Graph) FactorErrors(values Values) ([]float64, error) {
	out := make([]float64, len(g.entries))
	for i := range g.entries {
		ev, err := g.whitened(i, values, false)
		if err != nil {
			return nil, err
		}
		for _, r := range ev.Error {
			out[i] += 0.5 * r * r
		}
	}
	return out, nil
}

// Linearize stacks every whitened residual and its jacobian wrt the
// ordered keys. Keys missing from ordering are held constant.
func (g *Graph) Linearize(values Values, ordering Ordering) (*mat.Dense, []float64, error) {
	offsets, cols, err := ordering.Offsets(values)
	if err != nil {
		return nil, nil, err
	}
	var (
		blocks []Evaluation
		rows   int
	)
	for i := range g.entries {
		ev, err := g.whitened(i, values, true)
		if err != nil {
			return nil, nil, err
		}
		blocks = append(blocks, ev)
		rows += len(ev.Error)
	}
	if rows == 0 || cols == 0 {
		return nil, nil, errors.New("factors: empty linear system")
	}

	J := mat.NewDense(rows, cols, nil)
	r := make([]float64, 0, rows)
	row := 0
	for i, ev := range blocks {
		for k, key := range g.entries[i].factor.Keys() {
			off, ok := offsets[key]
			if !ok || len(ev.Error) == 0 || k >= len(ev.Jacobians) || ev.Jacobians[k] == nil {
				continue
			}
			h := ev.Jacobians[k]
			hr, hc := h.Dims()
			if hr != len(ev.Error) || hc != len(values[key]) {
				return nil, nil, errors.Errorf("factors: factor %d jacobian wrt %s is %dx%d, want %dx%d",
					i, key, hr, hc, len(ev.Error), len(values[key]))
			}
			block := J.Slice(row, row+hr, off, off+hc).(*mat.Dense)
			block.Add(block, h)
		}
		r = append(r, ev.Error...)
		row += len(ev.Error)
	}
	return J, r, nil
}
