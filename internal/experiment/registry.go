package experiment

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/config"
	"github.com/san-kum/linkage/internal/control"
	"github.com/san-kum/linkage/internal/dynamo"
	"github.com/san-kum/linkage/internal/integrators"
	"github.com/san-kum/linkage/internal/mbs"
	"github.com/san-kum/linkage/internal/metrics"
	"github.com/san-kum/linkage/internal/sim"
)

var ErrUnknownController = errors.New("experiment: unknown controller")

// ControllerFactory builds a controller for an n-coordinate model driving
// the coordinate at index drive.
type ControllerFactory func(n, drive int, d config.DriveConfig) dynamo.Controller

type Registry struct {
	controllers map[string]ControllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{controllers: make(map[string]ControllerFactory)}

	r.controllers["none"] = func(n, _ int, _ config.DriveConfig) dynamo.Controller {
		return control.NewNone(n)
	}
	r.controllers["pid"] = func(_ int, drive int, d config.DriveConfig) dynamo.Controller {
		pid := control.NewPID(drive, d.Kp, d.Ki, d.Kd)
		pid.Rate = d.Rate
		pid.Limit = d.Limit
		return pid
	}
	return r
}

// RegisterController adds or replaces a controller factory.
func (r *Registry) RegisterController(name string, f ControllerFactory) {
	r.controllers[name] = f
}

func (r *Registry) GetMechanism(name string) (*config.Mechanism, error) {
	return config.GetMechanism(name)
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	return integrators.New(name)
}

func (r *Registry) GetController(name string, n, drive int, d config.DriveConfig) (dynamo.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownController, "%q", name)
	}
	return fn(n, drive, d), nil
}

func (r *Registry) ListMechanisms() []string { return config.ListMechanisms() }

func (r *Registry) ListIntegrators() []string { return integrators.Names() }

func (r *Registry) ListControllers() []string {
	names := make([]string, 0, len(r.controllers))
	for name := range r.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns the metrics every mechanism run records.
func (r *Registry) DefaultMetrics(sys *sim.MechanismSystem, arm *mbs.AssembledModel) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewEnergy(sys),
		metrics.NewEnergyDrift(sys),
		metrics.NewConstraintViolation(arm, 1e-6),
		metrics.NewDriveEffort(),
	}
}
