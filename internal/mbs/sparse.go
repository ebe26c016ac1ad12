package mbs

import (
	"gonum.org/v1/gonum/mat"
)

// Sparse is a triplet matrix whose pattern is registered once and whose
// values are refreshed in place. Slots returned by Slot stay valid for the
// lifetime of the matrix; growing the pattern never invalidates them.
type Sparse struct {
	rows, cols int
	rowIdx     []int
	colIdx     []int
	vals       []float64
	lookup     map[[2]int]int
}

func NewSparse(rows, cols int) *Sparse {
	return &Sparse{
		rows:   rows,
		cols:   cols,
		lookup: make(map[[2]int]int),
	}
}

func (s *Sparse) Dims() (int, int) { return s.rows, s.cols }

// NNZ returns the number of registered entries.
func (s *Sparse) NNZ() int { return len(s.vals) }

// Slot registers entry (row, col) and returns its slot. Registering the same
// entry twice returns the same slot. A negative column yields -1, which every
// writer treats as "no entry".
func (s *Sparse) Slot(row, col int) int {
	if col < 0 || row < 0 {
		return -1
	}
	key := [2]int{row, col}
	if slot, ok := s.lookup[key]; ok {
		return slot
	}
	if row >= s.rows {
		s.rows = row + 1
	}
	if col >= s.cols {
		s.cols = col + 1
	}
	slot := len(s.vals)
	s.rowIdx = append(s.rowIdx, row)
	s.colIdx = append(s.colIdx, col)
	s.vals = append(s.vals, 0)
	s.lookup[key] = slot
	return slot
}

func (s *Sparse) Set(slot int, v float64) {
	if slot >= 0 {
		s.vals[slot] = v
	}
}

func (s *Sparse) Add(slot int, v float64) {
	if slot >= 0 {
		s.vals[slot] += v
	}
}

// Value returns the value stored at slot.
func (s *Sparse) Value(slot int) float64 {
	if slot < 0 {
		return 0
	}
	return s.vals[slot]
}

func (s *Sparse) Zero() {
	for i := range s.vals {
		s.vals[i] = 0
	}
}

// At returns entry (r, c); unregistered entries are zero.
func (s *Sparse) At(r, c int) float64 {
	if slot, ok := s.lookup[[2]int{r, c}]; ok {
		return s.vals[slot]
	}
	return 0
}

// Each calls fn for every registered entry in registration order.
func (s *Sparse) Each(fn func(r, c int, v float64)) {
	for k, v := range s.vals {
		fn(s.rowIdx[k], s.colIdx[k], v)
	}
}

// Dense expands the matrix. It returns nil for a matrix without rows or
// columns, which gonum cannot represent.
func (s *Sparse) Dense() *mat.Dense {
	if s.rows == 0 || s.cols == 0 {
		return nil
	}
	d := mat.NewDense(s.rows, s.cols, nil)
	for k, v := range s.vals {
		d.Set(s.rowIdx[k], s.colIdx[k], d.At(s.rowIdx[k], s.colIdx[k])+v)
	}
	return d
}

// DenseCols expands the sub-matrix made of the given columns, in order.
func (s *Sparse) DenseCols(cols []int) *mat.Dense {
	if s.rows == 0 || len(cols) == 0 {
		return nil
	}
	pos := make(map[int]int, len(cols))
	for j, c := range cols {
		pos[c] = j
	}
	d := mat.NewDense(s.rows, len(cols), nil)
	for k, v := range s.vals {
		if j, ok := pos[s.colIdx[k]]; ok {
			d.Set(s.rowIdx[k], j, d.At(s.rowIdx[k], j)+v)
		}
	}
	return d
}

// MulVec returns A·x.
func (s *Sparse) MulVec(x []float64) []float64 {
	y := make([]float64, s.rows)
	for k, v := range s.vals {
		y[s.rowIdx[k]] += v * x[s.colIdx[k]]
	}
	return y
}

// MulVecCols returns A·x restricted to the given columns.
func (s *Sparse) MulVecCols(x []float64, cols []int) []float64 {
	use := make(map[int]bool, len(cols))
	for _, c := range cols {
		use[c] = true
	}
	y := make([]float64, s.rows)
	for k, v := range s.vals {
		if use[s.colIdx[k]] {
			y[s.rowIdx[k]] += v * x[s.colIdx[k]]
		}
	}
	return y
}

// MulTransVec returns Aᵀ·y.
func (s *Sparse) MulTransVec(y []float64) []float64 {
	x := make([]float64, s.cols)
	for k, v := range s.vals {
		x[s.colIdx[k]] += v * y[s.rowIdx[k]]
	}
	return x
}
