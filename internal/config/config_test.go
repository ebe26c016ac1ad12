package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mechanism != "fourbar" {
		t.Errorf("expected mechanism fourbar, got %s", cfg.Mechanism)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Duration <= 0 {
		t.Error("duration should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Steps() != 500 {
		t.Errorf("expected 500 steps, got %d", cfg.Steps())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dt", func(c *Config) { c.Dt = 0 }},
		{"negative duration", func(c *Config) { c.Duration = -1 }},
		{"adaptive without tolerance", func(c *Config) { c.Adaptive = true; c.Tolerance = 0 }},
		{"no iterations", func(c *Config) { c.Kinematics.MaxIterations = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			cfg := DefaultConfig()
			tt.mutate(cfg)
			g.Expect(cfg.Validate()).To(MatchError(dynamo.ErrParameterBounds))
		})
	}
}

func TestLoadSave(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")

	cfg := DefaultConfig()
	cfg.Mechanism = "slider_crank"
	cfg.Drive.Rate = 3
	cfg.Baumgarte = BaumgarteConfig{Alpha: 2, Beta: 4}
	g.Expect(Save(path, cfg)).To(Succeed())

	loaded, err := Load(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded).To(Equal(cfg))
}

func TestLoadKeepsDefaults(t *testing.T) {
	g := NewWithT(t)
	path := filepath.Join(t.TempDir(), "partial.yaml")
	g.Expect(os.WriteFile(path, []byte("mechanism: pendulum\ndt: 0.005\n"), 0644)).To(Succeed())

	cfg, err := Load(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Mechanism).To(Equal("pendulum"))
	g.Expect(cfg.Dt).To(Equal(0.005))
	g.Expect(cfg.Integrator).To(Equal("rk4"))
	g.Expect(cfg.Kinematics.MaxIterations).To(Equal(DefaultMaxIter))
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("fourbar", "driven")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Controller != "pid" {
		t.Errorf("expected pid controller, got %s", cfg.Controller)
	}
	if cfg.Kinematics.MaxIterations != DefaultMaxIter {
		t.Error("preset should inherit kinematics defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("preset invalid: %v", err)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("fourbar", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "sweep")
	if cfg != nil {
		t.Error("expected nil for nonexistent mechanism")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("fourbar")
	if len(presets) == 0 {
		t.Error("expected presets for fourbar")
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent mechanism")
	}
}

func TestBuiltinMechanismsAssemble(t *testing.T) {
	tests := []struct {
		name        string
		coords      int
		constraints int
	}{
		{"fourbar", 5, 4},
		{"slider_crank", 5, 4},
		{"pendulum", 3, 2},
		{"double_pendulum", 6, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			m, err := GetMechanism(tt.name)
			g.Expect(err).NotTo(HaveOccurred())

			arm, indep, err := m.Assemble()
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(arm.NumCoords()).To(Equal(tt.coords))
			g.Expect(arm.NumConstraints()).To(Equal(tt.constraints))
			g.Expect(indep).To(HaveLen(arm.Mobility()))

			res, err := arm.ComputeDependentPosVelAcc(indep, true, true, mbs.DefaultKinematicsParams())
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(res.PosConverged).To(BeTrue())
		})
	}
	if len(ListMechanisms()) != len(tests) {
		t.Errorf("expected %d mechanisms, got %v", len(tests), ListMechanisms())
	}
}

func TestGetMechanismIsACopy(t *testing.T) {
	g := NewWithT(t)
	a, err := GetMechanism("pendulum")
	g.Expect(err).NotTo(HaveOccurred())
	a.Points[1].X = 5
	a.Constraints[0].Points[0] = "X"

	b, _ := GetMechanism("pendulum")
	g.Expect(b.Points[1].X).To(Equal(1.0))
	g.Expect(b.Constraints[0].Points[0]).To(Equal("O"))

	_, err = GetMechanism("cam")
	g.Expect(err).To(MatchError(ErrUnknownMechanism))
}

func TestBuildReportsAllProblems(t *testing.T) {
	g := NewWithT(t)
	m := &Mechanism{
		Points: []PointSpec{{Name: "A", Fixed: true}, {Name: "B", X: 1}, {Name: "B", X: 2}},
		Bodies: []BodySpec{{Name: "b", Points: [2]string{"A", "Z"}, Mass: 1}},
		Constraints: []ConstraintSpec{
			{Type: "weld", Points: []string{"A", "B"}},
			{Type: "distance", Points: []string{"A"}},
			{Type: "fixed_slider", Points: []string{"B"}},
		},
	}
	_, err := m.Build()
	g.Expect(err).To(HaveOccurred())

	var cfgErr *mbs.ConfigError
	g.Expect(err).To(BeAssignableToTypeOf(cfgErr))
	g.Expect(err).To(MatchError(mbs.ErrDuplicatePoint))
	g.Expect(err).To(MatchError(mbs.ErrUnknownPoint))
	g.Expect(err).To(MatchError(ErrUnknownConstraint))
	g.Expect(err).To(MatchError(ErrBadConstraint))
}

func TestMechanismFileRoundTrip(t *testing.T) {
	g := NewWithT(t)
	path := filepath.Join(t.TempDir(), "mech.yaml")
	m, _ := GetMechanism("slider_crank")
	m.Gravity = &[2]float64{0, -1.62}
	g.Expect(SaveMechanism(path, m)).To(Succeed())

	cfg := DefaultConfig()
	cfg.MechanismFile = path
	loaded, err := cfg.ResolveMechanism()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded).To(Equal(m))

	d, err := loaded.Build()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(d.Gravity()).To(Equal(mbs.Vec2{X: 0, Y: -1.62}))
}

func TestResolveCoordinates(t *testing.T) {
	g := NewWithT(t)
	m, _ := GetMechanism("fourbar")
	arm, _, err := m.Assemble()
	g.Expect(err).NotTo(HaveOccurred())

	idx, err := ResolveCoordinates(arm, []string{"theta", "C.y"})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(idx).To(Equal([]int{4, 3}))

	_, err = ResolveCoordinates(arm, []string{"A.x"})
	g.Expect(err).To(MatchError(mbs.ErrFixedPoint))
}
