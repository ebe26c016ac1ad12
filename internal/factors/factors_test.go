package factors

import (
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

func newFourBar(t *testing.T) *mbs.AssembledModel {
	t.Helper()
	d := mbs.NewModelDefinition()
	a := d.AddFixedPoint("A", 0, 0)
	b := d.AddPoint("B", 1, 0)
	c := d.AddPoint("C", 11.0/3, math.Sqrt(9-1.0/9))
	dd := d.AddFixedPoint("D", 4, 0)
	d.AddConstantDistance(a, b)
	d.AddConstantDistance(b, c)
	d.AddConstantDistance(c, dd)
	d.AddRelativeAngle(a, b, "theta")
	d.AddBar("crank", a, b, 1)
	d.AddBar("coupler", b, c, 2)
	d.AddBar("rocker", c, dd, 1.5)
	arm, err := d.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	return arm
}

func TestTrapInt(t *testing.T) {
	g := NewWithT(t)
	f := NewTrapInt(0.1, 2, Q(0), Q(1), V(0), V(1))
	values := Values{
		Q(0): {0, 1},
		Q(1): {0.15, 1},
		V(0): {1, 0},
		V(1): {2, 0},
	}
	ev, err := f.Evaluate(values, true)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ev.Error[0]).To(BeNumerically("~", 0, 1e-12))
	g.Expect(ev.Error[1]).To(BeNumerically("~", 0, 1e-12))
	g.Expect(ev.Jacobians).To(HaveLen(4))
	g.Expect(ev.Jacobians[2].At(1, 1)).To(Equal(-0.05))

	values[V(1)] = dynamo.State{2}
	_, err = f.Evaluate(values, false)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestPriorAndMissingKey(t *testing.T) {
	g := NewWithT(t)
	f := NewPrior(Q(3), dynamo.State{1, 2})
	ev, err := f.Evaluate(Values{Q(3): {1.5, 2}}, false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ev.Error).To(Equal([]float64{0.5, 0}))
	g.Expect(ev.Jacobians).To(BeNil())

	_, err = f.Evaluate(Values{}, false)
	g.Expect(err).To(HaveOccurred())
}

func TestConstraintsVelJacobiansMatchNumeric(t *testing.T) {
	g := NewWithT(t)
	arm := newFourBar(t)
	q := arm.Q().Clone()
	q[2] += 0.05 // off the manifold on purpose
	dq := dynamo.State{0.3, -0.2, 0.7, 0.1, 1.1}
	values := Values{Q(0): q, V(0): dq}

	f := NewConstraintsVel(arm, Q(0), V(0))
	ev, err := f.Evaluate(values, true)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ev.Error).To(HaveLen(f.Dim()))

	for k, key := range f.Keys() {
		numeric := mat.NewDense(f.Dim(), len(values[key]), nil)
		fd.Jacobian(numeric, func(y, x []float64) {
			vals := values.Clone()
			copy(vals[key], x)
			e, err := f.Evaluate(vals, false)
			if err != nil {
				t.Fatal(err)
			}
			copy(y, e.Error)
		}, values[key].Clone(), &fd.JacobianSettings{Formula: fd.Central})
		g.Expect(mat.EqualApprox(ev.Jacobians[k], numeric, 1e-6)).To(BeTrue(), "jacobian wrt %s", key)
	}
}

func TestConstraintsFactor(t *testing.T) {
	g := NewWithT(t)
	arm := newFourBar(t)
	f := NewConstraints(arm, Q(0))
	ev, err := f.Evaluate(Values{Q(0): arm.Q().Clone()}, true)
	g.Expect(err).NotTo(HaveOccurred())
	for _, r := range ev.Error {
		g.Expect(r).To(BeNumerically("~", 0, 1e-12))
	}
	rows, cols := ev.Jacobians[0].Dims()
	g.Expect(rows).To(Equal(4))
	g.Expect(cols).To(Equal(5))

	_, err = f.Evaluate(Values{Q(0): {1, 2}}, false)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
}

func TestDynamicsFactor(t *testing.T) {
	g := NewWithT(t)
	arm := newFourBar(t)
	sim := dynamics.New(arm)
	g.Expect(sim.Prepare()).To(Succeed())

	q := arm.Q().Clone()
	dq := make(dynamo.State, 5)
	ddq, _, err := sim.SolveDDotQ(q, dq, nil)
	g.Expect(err).NotTo(HaveOccurred())

	f := NewDynamics(sim, Q(0), V(0), A(0))
	ev, err := f.Evaluate(Values{Q(0): q, V(0): dq, A(0): ddq}, true)
	g.Expect(err).NotTo(HaveOccurred())
	for _, r := range ev.Error {
		g.Expect(r).To(BeNumerically("~", 0, 1e-9))
	}
	g.Expect(ev.Jacobians).To(HaveLen(3))
	g.Expect(mat.Equal(ev.Jacobians[2], identity(5, 1))).To(BeTrue())
	r, c := ev.Jacobians[0].Dims()
	g.Expect(r).To(Equal(5))
	g.Expect(c).To(Equal(5))
}

func TestNoise(t *testing.T) {
	g := NewWithT(t)
	s, err := NewIsotropic(0.5).Scales(3)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s).To(Equal([]float64{2, 2, 2}))

	_, err = NewDiagonal(1, 2).Scales(3)
	g.Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
	_, err = NewIsotropic(0).Scales(1)
	g.Expect(errors.Is(err, dynamo.ErrParameterBounds)).To(BeTrue())
}

func TestGraphErrorAndLinearize(t *testing.T) {
	g := NewWithT(t)
	graph := NewGraph()
	graph.Add(NewPrior(Q(0), dynamo.State{0, 0}), NewIsotropic(0.5))
	graph.Add(NewTrapInt(1, 2, Q(0), Q(1), V(0), V(1)), nil)
	values := Values{
		Q(0): {1, 0},
		Q(1): {1, 1},
		V(0): {0, 0},
		V(1): {0, 0},
	}

	e, err := graph.Error(values)
	g.Expect(err).NotTo(HaveOccurred())
	// prior: (1/0.5)² ; trapezoid: residual (0, 1)
	g.Expect(e).To(BeNumerically("~", 0.5*(4+1), 1e-12))

	per, err := graph.FactorErrors(values)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(per).To(Equal([]float64{2, 0.5}))

	// only positions are free
	J, r, err := graph.Linearize(values, Ordering{Q(0), Q(1)})
	g.Expect(err).NotTo(HaveOccurred())
	rows, cols := J.Dims()
	g.Expect(rows).To(Equal(4))
	g.Expect(cols).To(Equal(4))
	g.Expect(r).To(Equal([]float64{2, 0, 0, 1}))
	g.Expect(J.At(0, 0)).To(Equal(2.0))
	g.Expect(J.At(2, 0)).To(Equal(-1.0))
	g.Expect(J.At(2, 2)).To(Equal(1.0))

	_, _, err = graph.Linearize(values, Ordering{A(9)})
	g.Expect(err).To(HaveOccurred())
}

func TestOrderingRoundTrip(t *testing.T) {
	values := Values{Q(1): {3, 4}, Q(0): {1, 2}, V(0): {5, 6}}
	keys := values.Keys()
	if keys[0] != Q(0) || keys[1] != V(0) || keys[2] != Q(1) {
		t.Fatalf("unexpected key order %v", keys)
	}
	o := Ordering(keys)
	x := o.Flatten(values)
	x[0] = 9
	out := o.Unflatten(values, x)
	if out[Q(0)][0] != 9 || values[Q(0)][0] != 1 {
		t.Errorf("unflatten should copy: got %v / %v", out[Q(0)], values[Q(0)])
	}
}
