package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/linkage/internal/mbs"
)

var (
	ErrUnknownMechanism  = errors.New("config: unknown mechanism")
	ErrUnknownConstraint = errors.New("config: unknown constraint type")
	ErrBadConstraint     = errors.New("config: malformed constraint")
)

// Mechanism is the file form of a model definition. Points are referenced
// by name everywhere else in the file.
type Mechanism struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Gravity     *[2]float64      `yaml:"gravity,omitempty"`
	Points      []PointSpec      `yaml:"points"`
	Bodies      []BodySpec       `yaml:"bodies"`
	Constraints []ConstraintSpec `yaml:"constraints"`
	// Independent lists coordinate names: extra coordinates such as
	// "theta" or point components such as "B.x".
	Independent []string `yaml:"independent"`
}

type PointSpec struct {
	Name  string  `yaml:"name"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Fixed bool    `yaml:"fixed,omitempty"`
}

// BodySpec describes a rigid element between two points. Zero Length is
// taken from the point positions; zero Inertia and a nil COG give a
// uniform bar.
type BodySpec struct {
	Name    string      `yaml:"name"`
	Points  [2]string   `yaml:"points"`
	Mass    float64     `yaml:"mass"`
	Length  float64     `yaml:"length,omitempty"`
	COG     *[2]float64 `yaml:"cog,omitempty"`
	Inertia float64     `yaml:"inertia,omitempty"`
	Render  string      `yaml:"render,omitempty"`
}

// ConstraintSpec is one joint. Type is distance, angle, fixed_slider or
// mobile_slider. Angle joints create the coordinate named by Coordinate;
// fixed sliders use Line as the guide through two world points.
type ConstraintSpec struct {
	Type       string         `yaml:"type"`
	Points     []string       `yaml:"points"`
	Length     float64        `yaml:"length,omitempty"`
	Coordinate string         `yaml:"coordinate,omitempty"`
	Line       *[2][2]float64 `yaml:"line,omitempty"`
}

func LoadMechanism(path string) (*Mechanism, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read mechanism")
	}
	var m Mechanism
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &m, nil
}

func SaveMechanism(path string, m *Mechanism) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Build translates the description into a model definition. Every problem
// found is reported, not just the first.
func (m *Mechanism) Build() (*mbs.ModelDefinition, error) {
	d := mbs.NewModelDefinition()
	if m.Gravity != nil {
		d.SetGravity(mbs.Vec2{X: m.Gravity[0], Y: m.Gravity[1]})
	}

	var errs error
	index := make(map[string]int, len(m.Points))
	for _, p := range m.Points {
		if _, dup := index[p.Name]; dup {
			errs = multierr.Append(errs, errors.Wrapf(mbs.ErrDuplicatePoint, "point %q", p.Name))
			continue
		}
		if p.Fixed {
			index[p.Name] = d.AddFixedPoint(p.Name, p.X, p.Y)
		} else {
			index[p.Name] = d.AddPoint(p.Name, p.X, p.Y)
		}
	}
	lookup := func(owner, name string) (int, bool) {
		i, ok := index[name]
		if !ok {
			errs = multierr.Append(errs, errors.Wrapf(mbs.ErrUnknownPoint, "%s references %q", owner, name))
		}
		return i, ok
	}

	for _, b := range m.Bodies {
		owner := fmt.Sprintf("body %q", b.Name)
		p0, ok0 := lookup(owner, b.Points[0])
		p1, ok1 := lookup(owner, b.Points[1])
		if !ok0 || !ok1 {
			continue
		}
		var body *mbs.Body
		if b.Length == 0 && b.COG == nil && b.Inertia == 0 {
			body = d.AddBar(b.Name, p0, p1, b.Mass)
		} else {
			length := b.Length
			if length == 0 {
				length = pointDistance(m.Points, b.Points[0], b.Points[1])
			}
			cog := mbs.Vec2{X: length / 2}
			if b.COG != nil {
				cog = mbs.Vec2{X: b.COG[0], Y: b.COG[1]}
			}
			i0 := b.Inertia
			if i0 == 0 {
				i0 = b.Mass * length * length / 3
			}
			body = mbs.NewBody(b.Name, p0, p1, b.Mass, cog, length, i0)
			d.AddBody(body)
		}
		style, err := parseRenderStyle(b.Render)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, owner))
		}
		body.Render.Style = style
	}

	for i, c := range m.Constraints {
		owner := fmt.Sprintf("constraint %d (%s)", i, c.Type)
		pts := make([]int, 0, len(c.Points))
		ok := true
		for _, name := range c.Points {
			p, found := lookup(owner, name)
			ok = ok && found
			pts = append(pts, p)
		}
		if !ok {
			continue
		}
		if err := addConstraint(d, c, pts); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, owner))
		}
	}

	if errs != nil {
		return nil, &mbs.ConfigError{Errs: errs}
	}
	return d, nil
}

func addConstraint(d *mbs.ModelDefinition, c ConstraintSpec, pts []int) error {
	want := map[string]int{"distance": 2, "angle": 2, "fixed_slider": 1, "mobile_slider": 3}
	n, known := want[c.Type]
	if !known {
		return errors.Wrapf(ErrUnknownConstraint, "%q", c.Type)
	}
	if len(pts) != n {
		return errors.Wrapf(ErrBadConstraint, "%s needs %d points, got %d", c.Type, n, len(pts))
	}

	switch c.Type {
	case "distance":
		dc := d.AddConstantDistance(pts[0], pts[1])
		if c.Length > 0 {
			dc.Length = c.Length
		}
	case "angle":
		if c.Coordinate == "" {
			return errors.Wrap(ErrBadConstraint, "angle needs a coordinate name")
		}
		d.AddRelativeAngle(pts[0], pts[1], c.Coordinate)
	case "fixed_slider":
		if c.Line == nil {
			return errors.Wrap(ErrBadConstraint, "fixed_slider needs a line")
		}
		a := mbs.Vec2{X: c.Line[0][0], Y: c.Line[0][1]}
		b := mbs.Vec2{X: c.Line[1][0], Y: c.Line[1][1]}
		d.AddFixedSlider(pts[0], a, b)
	case "mobile_slider":
		d.AddMobileSlider(pts[0], pts[1], pts[2])
	}
	return nil
}

func parseRenderStyle(s string) (mbs.RenderStyle, error) {
	switch strings.ToLower(s) {
	case "", "cylinder":
		return mbs.RenderCylinder, nil
	case "line":
		return mbs.RenderLine, nil
	}
	return mbs.RenderCylinder, errors.Errorf("config: unknown render style %q", s)
}

func pointDistance(points []PointSpec, a, b string) float64 {
	var pa, pb *PointSpec
	for i := range points {
		switch points[i].Name {
		case a:
			pa = &points[i]
		case b:
			pb = &points[i]
		}
	}
	if pa == nil || pb == nil {
		return 0
	}
	return math.Hypot(pb.X-pa.X, pb.Y-pa.Y)
}

// Assemble builds and assembles the mechanism and resolves the
// independent coordinate names to indices into q.
func (m *Mechanism) Assemble() (*mbs.AssembledModel, []int, error) {
	d, err := m.Build()
	if err != nil {
		return nil, nil, err
	}
	arm, err := d.Assemble()
	if err != nil {
		return nil, nil, err
	}
	indep, err := ResolveCoordinates(arm, m.Independent)
	if err != nil {
		return nil, nil, err
	}
	return arm, indep, nil
}

// ResolveCoordinates maps coordinate names to indices into q.
func ResolveCoordinates(arm *mbs.AssembledModel, names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, name := range names {
		i, err := arm.CoordinateIndex(name)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}
