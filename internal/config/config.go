package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/mbs"
)

const (
	DefaultDt        = 0.01
	DefaultDuration  = 5.0
	DefaultKp        = 50.0
	DefaultKi        = 0.0
	DefaultKd        = 10.0
	DefaultTolerance = 1e-10
	DefaultMaxIter   = 100
)

// Config is a run description: which mechanism, how to integrate it and
// how to drive it.
type Config struct {
	Mechanism     string           `yaml:"mechanism"`
	MechanismFile string           `yaml:"mechanism_file,omitempty"`
	Integrator    string           `yaml:"integrator"`
	Controller    string           `yaml:"controller"`
	Dt            float64          `yaml:"dt"`
	Duration      float64          `yaml:"duration"`
	Seed          int64            `yaml:"seed"`
	Adaptive      bool             `yaml:"adaptive"`
	Tolerance     float64          `yaml:"tolerance"`
	Drive         DriveConfig      `yaml:"drive"`
	Kinematics    KinematicsConfig `yaml:"kinematics"`
	Baumgarte     BaumgarteConfig  `yaml:"baumgarte"`
	Estimate      EstimateConfig   `yaml:"estimate"`
}

// DriveConfig names the driven coordinate and the PID gains. Rate is also
// the independent-coordinate rate for kinematic sweeps.
type DriveConfig struct {
	Coordinate string  `yaml:"coordinate"`
	Rate       float64 `yaml:"rate"`
	Kp         float64 `yaml:"kp"`
	Ki         float64 `yaml:"ki"`
	Kd         float64 `yaml:"kd"`
	Limit      float64 `yaml:"limit"`
}

type KinematicsConfig struct {
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Damping       float64 `yaml:"damping"`
	Project       bool    `yaml:"project"`
}

type BaumgarteConfig struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

type EstimateConfig struct {
	Steps      int `yaml:"steps"`
	Every      int `yaml:"every"`
	FinalIters int `yaml:"final_iters"`
}

func DefaultConfig() *Config {
	return &Config{
		Mechanism:  "fourbar",
		Integrator: "rk4",
		Controller: "none",
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Tolerance:  1e-6,
		Drive: DriveConfig{
			Coordinate: "theta",
			Rate:       1.0,
			Kp:         DefaultKp,
			Ki:         DefaultKi,
			Kd:         DefaultKd,
		},
		Kinematics: KinematicsConfig{
			Tolerance:     DefaultTolerance,
			MaxIterations: DefaultMaxIter,
			Damping:       1e-12,
			Project:       true,
		},
		Estimate: EstimateConfig{
			Steps:      40,
			Every:      10,
			FinalIters: 200,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the numeric settings.
func (c *Config) Validate() error {
	switch {
	case c.Dt <= 0:
		return errors.Wrapf(dynamo.ErrParameterBounds, "dt %g", c.Dt)
	case c.Duration <= 0:
		return errors.Wrapf(dynamo.ErrParameterBounds, "duration %g", c.Duration)
	case c.Adaptive && c.Tolerance <= 0:
		return errors.Wrapf(dynamo.ErrParameterBounds, "tolerance %g", c.Tolerance)
	case c.Kinematics.Tolerance <= 0 || c.Kinematics.MaxIterations <= 0:
		return errors.Wrapf(dynamo.ErrParameterBounds, "kinematics tolerance %g, iterations %d",
			c.Kinematics.Tolerance, c.Kinematics.MaxIterations)
	}
	return nil
}

// Steps is the number of fixed steps covering Duration.
func (c *Config) Steps() int {
	n := int(c.Duration/c.Dt + 0.5)
	return max(n, 1)
}

// SimConfig returns the simulator loop settings.
func (c *Config) SimConfig() dynamo.Config {
	sc := dynamo.DefaultConfig()
	sc.Dt = c.Dt
	sc.Duration = c.Duration
	sc.Seed = c.Seed
	sc.Adaptive = c.Adaptive
	sc.Tolerance = c.Tolerance
	return sc
}

// KinematicsParams returns the position solver settings.
func (c *Config) KinematicsParams() mbs.KinematicsParams {
	p := mbs.DefaultKinematicsParams()
	p.Tolerance = c.Kinematics.Tolerance
	p.MaxIterations = c.Kinematics.MaxIterations
	if c.Kinematics.Damping > 0 {
		p.Damping = c.Kinematics.Damping
	}
	return p
}

// ResolveMechanism loads MechanismFile when set and falls back to the
// built-in mechanism named by Mechanism.
func (c *Config) ResolveMechanism() (*Mechanism, error) {
	if c.MechanismFile != "" {
		return LoadMechanism(c.MechanismFile)
	}
	return GetMechanism(c.Mechanism)
}
