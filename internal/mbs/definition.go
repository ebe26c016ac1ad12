package mbs

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/linkage/internal/logging"
)

// DefaultGravity points down the Y axis.
var DefaultGravity = Vec2{0, -9.81}

type coordDef struct {
	name  string
	value float64
}

// ModelDefinition is the mutable description of a mechanism. Assemble turns
// it into an AssembledModel; the definition can be assembled any number of
// times and every model gets its own copies of bodies and constraints.
type ModelDefinition struct {
	points      []PointDef
	coords      []coordDef
	bodies      []*Body
	constraints []Constraint
	gravity     Vec2
}

func NewModelDefinition() *ModelDefinition {
	return &ModelDefinition{gravity: DefaultGravity}
}

// AddPoint adds a variable point and returns its index.
func (d *ModelDefinition) AddPoint(name string, x, y float64) int {
	d.points = append(d.points, PointDef{Name: name, X: x, Y: y})
	return len(d.points) - 1
}

// AddFixedPoint adds a ground point and returns its index.
func (d *ModelDefinition) AddFixedPoint(name string, x, y float64) int {
	d.points = append(d.points, PointDef{Name: name, X: x, Y: y, Fixed: true})
	return len(d.points) - 1
}

// AddCoordinate adds an extra coordinate (e.g. an angle) and returns its id.
func (d *ModelDefinition) AddCoordinate(name string, value float64) int {
	d.coords = append(d.coords, coordDef{name: name, value: value})
	return len(d.coords) - 1
}

func (d *ModelDefinition) AddBody(b *Body) int {
	d.bodies = append(d.bodies, b)
	return len(d.bodies) - 1
}

// AddBar adds a uniform bar between two points with its length taken from
// their current positions.
func (d *ModelDefinition) AddBar(name string, p0, p1 int, mass float64) *Body {
	b := NewBar(name, p0, p1, mass, d.distance(p0, p1))
	d.AddBody(b)
	return b
}

func (d *ModelDefinition) AddConstraint(c Constraint) {
	d.constraints = append(d.constraints, c)
}

// AddConstantDistance constrains p0 and p1 to their current distance.
func (d *ModelDefinition) AddConstantDistance(p0, p1 int) *ConstantDistance {
	c := NewConstantDistance(p0, p1, d.distance(p0, p1))
	d.AddConstraint(c)
	return c
}

// AddRelativeAngle creates a coordinate holding the current absolute angle of
// p0→p1 and constrains it.
func (d *ModelDefinition) AddRelativeAngle(p0, p1 int, name string) *RelativeAngleAbsolute {
	theta := 0.0
	if d.valid(p0) && d.valid(p1) {
		a, b := d.points[p0], d.points[p1]
		theta = math.Atan2(b.Y-a.Y, b.X-a.X)
	}
	c := NewRelativeAngleAbsolute(p0, p1, d.AddCoordinate(name, theta))
	d.AddConstraint(c)
	return c
}

func (d *ModelDefinition) AddFixedSlider(p int, a, b Vec2) *FixedSlider {
	c := NewFixedSlider(p, a, b)
	d.AddConstraint(c)
	return c
}

func (d *ModelDefinition) AddMobileSlider(p, r0, r1 int) *MobileSlider {
	c := NewMobileSlider(p, r0, r1)
	d.AddConstraint(c)
	return c
}

func (d *ModelDefinition) SetGravity(g Vec2) { d.gravity = g }

func (d *ModelDefinition) Gravity() Vec2 { return d.gravity }

func (d *ModelDefinition) Points() []PointDef {
	out := make([]PointDef, len(d.points))
	copy(out, d.points)
	return out
}

// PointByName returns the index of the first point with the given name.
func (d *ModelDefinition) PointByName(name string) (int, bool) {
	for i, p := range d.points {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (d *ModelDefinition) valid(i int) bool { return i >= 0 && i < len(d.points) }

func (d *ModelDefinition) distance(p0, p1 int) float64 {
	if !d.valid(p0) || !d.valid(p1) {
		return 0
	}
	a, b := d.points[p0], d.points[p1]
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Assemble lays out q, registers every constraint and evaluates Φ once.
// All problems found are returned together in a *ConfigError.
func (d *ModelDefinition) Assemble() (*AssembledModel, error) {
	m := &AssembledModel{
		gravity: d.gravity,
		logger:  logging.Global().Named("mbs"),
	}

	n := 0
	m.points = make([]pointInfo, len(d.points))
	for i, p := range d.points {
		pi := pointInfo{name: p.Name, fixed: p.Fixed, x: p.X, y: p.Y, ix: -1, iy: -1}
		if !p.Fixed {
			pi.ix, pi.iy = n, n+1
			n += 2
		}
		m.points[i] = pi
	}
	var errs error
	names := make(map[string]bool, len(d.coords))
	m.coords = make([]coordInfo, len(d.coords))
	for i, c := range d.coords {
		if names[c.name] {
			errs = multierr.Append(errs, errors.Errorf("mbs: duplicate coordinate %q", c.name))
		}
		names[c.name] = true
		m.coords[i] = coordInfo{name: c.name, index: n}
		n++
	}
	if n == 0 {
		return nil, &ConfigError{Errs: ErrNoCoordinates}
	}

	m.q = make([]float64, n)
	m.dq = make([]float64, n)
	m.ddq = make([]float64, n)
	for _, p := range m.points {
		if !p.fixed {
			m.q[p.ix], m.q[p.iy] = p.x, p.y
		}
	}
	for i, c := range d.coords {
		m.q[m.coords[i].index] = c.value
	}

	m.phiQ = NewSparse(0, n)
	m.dotPhiQ = NewSparse(0, n)
	m.dPhiqdq = NewSparse(0, n)

	for i, b := range d.bodies {
		if err := m.checkBody(b); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "body %d (%s)", i, b.Name))
			continue
		}
		m.bodies = append(m.bodies, b.clone())
	}
	for i, c := range d.constraints {
		cc := c.Clone()
		if err := cc.BuildSparseStructures(m); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "constraint %d", i))
			continue
		}
		m.constraints = append(m.constraints, cc)
	}
	if rows := len(m.phi); rows > n {
		errs = multierr.Append(errs, errors.Wrapf(ErrTooManyConstraints, "%d equations, %d coordinates", rows, n))
	}
	if errs != nil {
		return nil, &ConfigError{Errs: errs}
	}

	m.buildMassStructure()
	m.UpdatePhiAndJacobians()
	m.logger.Debugw("model assembled",
		"coordinates", n, "constraints", len(m.phi), "bodies", len(m.bodies), "nnz", m.phiQ.NNZ())
	return m, nil
}
