package mbs

import (
	"math/rand"
	"testing"

	"github.com/san-kum/linkage/internal/logging"
)

// fourBar is a Grashof crank-rocker: ground AD = 4, crank AB = 1, coupler
// BC = 4, rocker CD = 3. q = [Bx, By, Cx, Cy, θ].
func fourBarDefinition() *ModelDefinition {
	d := NewModelDefinition()
	a := d.AddFixedPoint("A", 0, 0)
	b := d.AddPoint("B", 1, 0.1)
	c := d.AddPoint("C", 3.5, 3)
	dd := d.AddFixedPoint("D", 4, 0)

	d.AddConstraint(NewConstantDistance(a, b, 1))
	d.AddConstraint(NewConstantDistance(b, c, 4))
	d.AddConstraint(NewConstantDistance(c, dd, 3))
	d.AddRelativeAngle(a, b, "theta")

	d.AddBody(NewBar("crank", a, b, 1, 1))
	d.AddBody(NewBar("coupler", b, c, 2, 4))
	d.AddBody(NewBar("rocker", c, dd, 1.5, 3))
	return d
}

func newFourBar(t testing.TB) *AssembledModel {
	t.Helper()
	m, err := fourBarDefinition().Assemble()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	m.SetLogger(logging.NewTestLogger(t))
	return m
}

// allJoints exercises every constraint variant in one model:
// q = [P1x, P1y, P2x, P2y, P3x, P3y, Sx, Sy, φ].
func allJointsDefinition() *ModelDefinition {
	d := NewModelDefinition()
	o := d.AddFixedPoint("O", 0, 0)
	p1 := d.AddPoint("P1", 1, 0.2)
	p2 := d.AddPoint("P2", 2.1, 1.3)
	p3 := d.AddPoint("P3", 1.6, 0.7)
	s := d.AddPoint("S", 0.4, -0.5)

	d.AddConstantDistance(o, p1)
	d.AddConstantDistance(p1, p2)
	d.AddMobileSlider(p3, p1, p2)
	d.AddFixedSlider(s, Vec2{-1, -1}, Vec2{2, -0.2})
	d.AddRelativeAngle(p1, p2, "phi")
	return d
}

func randomize(m *AssembledModel, rng *rand.Rand) {
	q := make([]float64, m.NumCoords())
	dq := make([]float64, m.NumCoords())
	for i := range q {
		q[i] = rng.Float64()*4 - 2
		dq[i] = rng.Float64()*2 - 1
	}
	_ = m.SetQ(q)
	_ = m.SetDotQ(dq)
	m.UpdatePhiAndJacobians()
}
