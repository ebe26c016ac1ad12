package integrators

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

var registry = map[string]func() dynamo.Integrator{
	"euler":       func() dynamo.Integrator { return NewEuler() },
	"symplectic":  func() dynamo.Integrator { return NewSemiImplicitEuler() },
	"trapezoidal": func() dynamo.Integrator { return NewTrapezoidal() },
	"rk4":         func() dynamo.Integrator { return NewRK4() },
	"rk45":        func() dynamo.Integrator { return NewRK45() },
	"verlet":      func() dynamo.Integrator { return NewVerlet() },
	"leapfrog":    func() dynamo.Integrator { return NewLeapfrog() },
}

// ErrUnknownIntegrator is returned by New for names not in Names.
var ErrUnknownIntegrator = errors.New("integrators: unknown integrator")

// New returns a fresh integrator. Integrators keep scratch buffers, so
// concurrent runs need one each.
func New(name string) (dynamo.Integrator, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIntegrator, "%q", name)
	}
	return mk(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
