package sim

import (
	"testing"

	"github.com/san-kum/linkage/internal/dynamics"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/logging"
	"github.com/san-kum/linkage/internal/mbs"
)

// pendulum is a uniform unit bar pinned at the origin and released
// horizontally. With withAngle, q = [Px, Py, θ]; otherwise q = [Px, Py].
func pendulum(t testing.TB, withAngle bool) (*MechanismSystem, dynamo.State) {
	t.Helper()
	d := mbs.NewModelDefinition()
	o := d.AddFixedPoint("O", 0, 0)
	p := d.AddPoint("P", 1, 0)
	d.AddConstantDistance(o, p)
	if withAngle {
		d.AddRelativeAngle(o, p, "theta")
	}
	d.AddBar("bar", o, p, 1)

	arm, err := d.Assemble()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	arm.SetLogger(logging.NewTestLogger(t))
	dyn := dynamics.New(arm, dynamics.WithLogger(logging.NewTestLogger(t)))
	if err := dyn.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	return NewMechanismSystem(dyn), dynamo.Stack(arm.Q(), arm.DotQ())
}

// fourBar is the crank-rocker with ground 4, crank 1, coupler 4 and
// rocker 3; q = [Bx, By, Cx, Cy, θ].
func fourBar(t testing.TB) *mbs.AssembledModel {
	t.Helper()
	d := mbs.NewModelDefinition()
	a := d.AddFixedPoint("A", 0, 0)
	b := d.AddPoint("B", 1, 0.1)
	c := d.AddPoint("C", 3.5, 3)
	dd := d.AddFixedPoint("D", 4, 0)

	d.AddConstraint(mbs.NewConstantDistance(a, b, 1))
	d.AddConstraint(mbs.NewConstantDistance(b, c, 4))
	d.AddConstraint(mbs.NewConstantDistance(c, dd, 3))
	d.AddRelativeAngle(a, b, "theta")

	d.AddBody(mbs.NewBar("crank", a, b, 1, 1))
	d.AddBody(mbs.NewBar("coupler", b, c, 2, 4))
	d.AddBody(mbs.NewBar("rocker", c, dd, 1.5, 3))

	arm, err := d.Assemble()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	arm.SetLogger(logging.NewTestLogger(t))
	return arm
}

func phiNorm(arm *mbs.AssembledModel, x dynamo.State) float64 {
	q, _ := x.Split()
	_ = arm.SetQ(q)
	arm.UpdatePhiAndJacobians()
	return arm.PhiNorm()
}
