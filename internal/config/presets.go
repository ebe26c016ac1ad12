package config

import (
	"sort"

	"github.com/pkg/errors"
)

// Mechanisms holds the built-in mechanism descriptions.
var Mechanisms = map[string]*Mechanism{
	"fourbar": {
		Name:        "fourbar",
		Description: "Grashof crank-rocker: ground 4, crank 1, coupler 4, rocker 3",
		Points: []PointSpec{
			{Name: "A", X: 0, Y: 0, Fixed: true},
			{Name: "B", X: 1, Y: 0},
			{Name: "C", X: 3.667, Y: 2.981},
			{Name: "D", X: 4, Y: 0, Fixed: true},
		},
		Bodies: []BodySpec{
			{Name: "crank", Points: [2]string{"A", "B"}, Mass: 1},
			{Name: "coupler", Points: [2]string{"B", "C"}, Mass: 2, Length: 4},
			{Name: "rocker", Points: [2]string{"C", "D"}, Mass: 1.5, Length: 3},
		},
		Constraints: []ConstraintSpec{
			{Type: "distance", Points: []string{"A", "B"}},
			{Type: "distance", Points: []string{"B", "C"}, Length: 4},
			{Type: "distance", Points: []string{"C", "D"}, Length: 3},
			{Type: "angle", Points: []string{"A", "B"}, Coordinate: "theta"},
		},
		Independent: []string{"theta"},
	},
	"slider_crank": {
		Name:        "slider_crank",
		Description: "crank 1, connecting rod 3, slider on the ground line",
		Points: []PointSpec{
			{Name: "A", X: 0, Y: 0, Fixed: true},
			{Name: "B", X: 1, Y: 0},
			{Name: "C", X: 4, Y: 0},
		},
		Bodies: []BodySpec{
			{Name: "crank", Points: [2]string{"A", "B"}, Mass: 1},
			{Name: "rod", Points: [2]string{"B", "C"}, Mass: 1.5},
		},
		Constraints: []ConstraintSpec{
			{Type: "distance", Points: []string{"A", "B"}},
			{Type: "distance", Points: []string{"B", "C"}},
			{Type: "fixed_slider", Points: []string{"C"}, Line: &[2][2]float64{{0, 0}, {1, 0}}},
			{Type: "angle", Points: []string{"A", "B"}, Coordinate: "theta"},
		},
		Independent: []string{"theta"},
	},
	"pendulum": {
		Name:        "pendulum",
		Description: "uniform bar pinned at one end",
		Points: []PointSpec{
			{Name: "O", X: 0, Y: 0, Fixed: true},
			{Name: "P", X: 1, Y: 0},
		},
		Bodies: []BodySpec{
			{Name: "bar", Points: [2]string{"O", "P"}, Mass: 1},
		},
		Constraints: []ConstraintSpec{
			{Type: "distance", Points: []string{"O", "P"}},
			{Type: "angle", Points: []string{"O", "P"}, Coordinate: "theta"},
		},
		Independent: []string{"theta"},
	},
	"double_pendulum": {
		Name:        "double_pendulum",
		Description: "two uniform bars in series",
		Points: []PointSpec{
			{Name: "O", X: 0, Y: 0, Fixed: true},
			{Name: "P1", X: 1, Y: 0},
			{Name: "P2", X: 2, Y: 0},
		},
		Bodies: []BodySpec{
			{Name: "upper", Points: [2]string{"O", "P1"}, Mass: 1},
			{Name: "lower", Points: [2]string{"P1", "P2"}, Mass: 1},
		},
		Constraints: []ConstraintSpec{
			{Type: "distance", Points: []string{"O", "P1"}},
			{Type: "distance", Points: []string{"P1", "P2"}},
			{Type: "angle", Points: []string{"O", "P1"}, Coordinate: "theta1"},
			{Type: "angle", Points: []string{"P1", "P2"}, Coordinate: "theta2"},
		},
		Independent: []string{"theta1", "theta2"},
	},
}

// Presets are named run settings per mechanism.
var Presets = map[string]map[string]*Config{
	"fourbar": {
		"sweep": {
			Mechanism: "fourbar", Integrator: "rk4", Controller: "none", Dt: 0.01, Duration: 1,
			Drive: DriveConfig{Coordinate: "theta", Rate: 6.283185307179586},
		},
		"driven": {
			Mechanism: "fourbar", Integrator: "rk4", Controller: "pid", Dt: 0.002, Duration: 3,
			Drive: DriveConfig{Coordinate: "theta", Rate: 3.141592653589793, Kp: 200, Kd: 40},
		},
		"free": {
			Mechanism: "fourbar", Integrator: "rk4", Controller: "none", Dt: 0.002, Duration: 3,
		},
	},
	"slider_crank": {
		"sweep": {
			Mechanism: "slider_crank", Integrator: "rk4", Controller: "none", Dt: 0.01, Duration: 1,
			Drive: DriveConfig{Coordinate: "theta", Rate: 6.283185307179586},
		},
		"driven": {
			Mechanism: "slider_crank", Integrator: "rk4", Controller: "pid", Dt: 0.002, Duration: 2,
			Drive: DriveConfig{Coordinate: "theta", Rate: 6.283185307179586, Kp: 100, Kd: 20},
		},
	},
	"pendulum": {
		"release": {
			Mechanism: "pendulum", Integrator: "rk4", Controller: "none", Dt: 0.001, Duration: 5,
		},
		"symplectic": {
			Mechanism: "pendulum", Integrator: "verlet", Controller: "none", Dt: 0.005, Duration: 20,
		},
	},
	"double_pendulum": {
		"chaos": {
			Mechanism: "double_pendulum", Integrator: "rk4", Controller: "none", Dt: 0.001, Duration: 10,
			Baumgarte: BaumgarteConfig{Alpha: 5, Beta: 5},
		},
		"adaptive": {
			Mechanism: "double_pendulum", Integrator: "rk45", Controller: "none", Dt: 0.01, Duration: 10,
			Adaptive: true, Tolerance: 1e-8,
		},
	},
}

// GetMechanism returns a private copy of a built-in mechanism.
func GetMechanism(name string) (*Mechanism, error) {
	m, ok := Mechanisms[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMechanism, "%q", name)
	}
	return m.clone(), nil
}

func ListMechanisms() []string {
	names := make([]string, 0, len(Mechanisms))
	for name := range Mechanisms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns the preset merged over DefaultConfig, or nil.
func GetPreset(mechanism, preset string) *Config {
	modelPresets, ok := Presets[mechanism]
	if !ok {
		return nil
	}
	p, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Mechanism = p.Mechanism
	cfg.Integrator = p.Integrator
	cfg.Controller = p.Controller
	cfg.Dt = p.Dt
	cfg.Duration = p.Duration
	cfg.Adaptive = p.Adaptive
	if p.Tolerance > 0 {
		cfg.Tolerance = p.Tolerance
	}
	cfg.Baumgarte = p.Baumgarte
	if p.Drive.Coordinate != "" {
		cfg.Drive.Coordinate = p.Drive.Coordinate
		cfg.Drive.Rate = p.Drive.Rate
	}
	if p.Drive.Kp != 0 || p.Drive.Kd != 0 {
		cfg.Drive.Kp, cfg.Drive.Ki, cfg.Drive.Kd = p.Drive.Kp, p.Drive.Ki, p.Drive.Kd
	}
	return cfg
}

func ListPresets(mechanism string) []string {
	modelPresets, ok := Presets[mechanism]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mechanism) clone() *Mechanism {
	c := *m
	c.Points = append([]PointSpec(nil), m.Points...)
	c.Bodies = append([]BodySpec(nil), m.Bodies...)
	c.Constraints = make([]ConstraintSpec, len(m.Constraints))
	for i, cs := range m.Constraints {
		cs.Points = append([]string(nil), cs.Points...)
		c.Constraints[i] = cs
	}
	c.Independent = append([]string(nil), m.Independent...)
	return &c
}
