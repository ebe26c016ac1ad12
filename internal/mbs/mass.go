package mbs

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// buildMassStructure registers the 4×4 block of every body once.
func (m *AssembledModel) buildMassStructure() {
	n := len(m.q)
	m.mass = NewSparse(n, n)
	m.massSlots = make([][4][4]int, len(m.bodies))
	for bi, b := range m.bodies {
		idx := m.bodyColumns(b)
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				if idx[i] < 0 || idx[j] < 0 {
					m.massSlots[bi][i][j] = -1
					continue
				}
				m.massSlots[bi][i][j] = m.mass.Slot(idx[i], idx[j])
			}
		}
	}
}

// bodyColumns returns the q indices of (x0, y0, x1, y1), -1 when fixed.
func (m *AssembledModel) bodyColumns(b *Body) [4]int {
	p0, p1 := m.points[b.Points[0]], m.points[b.Points[1]]
	return [4]int{p0.ix, p0.iy, p1.ix, p1.iy}
}

// MassMatrix assembles the global n×n mass matrix. Rows of extra
// coordinates carry no inertia and stay zero.
func (m *AssembledModel) MassMatrix() *mat.SymDense {
	m.mass.Zero()
	for bi, b := range m.bodies {
		mb := b.MassMatrix4()
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				m.mass.Add(m.massSlots[bi][i][j], mb[i][j])
			}
		}
	}
	n := len(m.q)
	sym := mat.NewSymDense(n, nil)
	m.mass.Each(func(r, c int, v float64) {
		if r <= c {
			sym.SetSym(r, c, v)
		}
	})
	return sym
}

// AddPointForce applies a constant external force on a variable point, in
// addition to gravity.
func (m *AssembledModel) AddPointForce(i int, f Vec2) error {
	if _, _, err := m.variableIndices(i); err != nil {
		return errors.Wrap(err, "point force")
	}
	if m.forces == nil {
		m.forces = make(map[int]Vec2)
	}
	m.forces[i] = m.forces[i].Add(f)
	return nil
}

func (m *AssembledModel) ClearPointForces() { m.forces = nil }

// GeneralizedForces writes the generalized applied forces (gravity plus
// point forces) into dst, allocating when dst has the wrong length.
func (m *AssembledModel) GeneralizedForces(dst []float64) []float64 {
	if len(dst) != len(m.q) {
		dst = make([]float64, len(m.q))
	} else {
		for i := range dst {
			dst[i] = 0
		}
	}
	for _, b := range m.bodies {
		f0, f1 := b.GravityForces(m.gravity)
		idx := m.bodyColumns(b)
		add := func(k int, v float64) {
			if idx[k] >= 0 {
				dst[idx[k]] += v
			}
		}
		add(0, f0.X)
		add(1, f0.Y)
		add(2, f1.X)
		add(3, f1.Y)
	}
	for i, f := range m.forces {
		p := m.points[i]
		dst[p.ix] += f.X
		dst[p.iy] += f.Y
	}
	return dst
}

// KineticEnergy returns ½ q̇ᵀ M q̇.
func (m *AssembledModel) KineticEnergy() float64 {
	t := 0.0
	for _, b := range m.bodies {
		p0, p1 := m.pointRef(b.Points[0]), m.pointRef(b.Points[1])
		v := [4]float64{p0.DotX, p0.DotY, p1.DotX, p1.DotY}
		mb := b.MassMatrix4()
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				t += v[i] * mb[i][j] * v[j]
			}
		}
	}
	return 0.5 * t
}

// PotentialEnergy returns the gravitational potential -Σ m g·r_cog. Point
// forces are not conservative in general and are left out.
func (m *AssembledModel) PotentialEnergy() float64 {
	v := 0.0
	for _, b := range m.bodies {
		p0, p1 := m.pointRef(b.Points[0]), m.pointRef(b.Points[1])
		r := b.GlobalCOG(p0.Position(), p1.Position())
		v -= b.Mass() * m.gravity.Dot(r)
	}
	return v
}

func (m *AssembledModel) Energy() float64 {
	return m.KineticEnergy() + m.PotentialEnergy()
}
