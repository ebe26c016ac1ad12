package control

import (
	"github.com/pkg/errors"

	"github.com/san-kum/linkage/internal/dynamo"
)

// PID drives the coordinate at index Coord of a stacked [q; q̇] state
// toward Target + Rate·t. The derivative term acts on the velocity error,
// so a setpoint jump does not kick the output.
type PID struct {
	Coord  int
	Kp     float64
	Ki     float64
	Kd     float64
	Target float64
	Rate   float64
	// Limit clamps the output magnitude when positive.
	Limit float64

	integral float64
	prevT    float64
	first    bool
}

func NewPID(coord int, kp, ki, kd float64) *PID {
	return &PID{
		Coord: coord,
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		first: true,
	}
}

// Setpoint returns the target coordinate value at time t.
func (p *PID) Setpoint(t float64) float64 {
	return p.Target + p.Rate*t
}

func (p *PID) Compute(x dynamo.State, t float64) dynamo.Control {
	n := len(x) / 2
	u := make(dynamo.Control, n)
	if p.Coord < 0 || p.Coord >= n {
		return u
	}

	e := p.Setpoint(t) - x[p.Coord]
	de := p.Rate - x[n+p.Coord]

	if p.first {
		p.first = false
	} else if dt := t - p.prevT; dt > 0 {
		p.integral += e * dt
	}
	p.prevT = t

	out := p.Kp*e + p.Ki*p.integral + p.Kd*de
	if p.Limit > 0 {
		out = max(-p.Limit, min(p.Limit, out))
	}
	u[p.Coord] = out
	return u
}

// Reset clears the integral state.
func (p *PID) Reset() {
	p.integral = 0
	p.prevT = 0
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.Kp,
		"Ki":     p.Ki,
		"Kd":     p.Kd,
		"Target": p.Target,
		"Rate":   p.Rate,
		"Limit":  p.Limit,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	case "Rate":
		p.Rate = value
	case "Limit":
		if value < 0 {
			return errors.Wrapf(dynamo.ErrParameterBounds, "limit %g", value)
		}
		p.Limit = value
	default:
		return errors.Errorf("control: unknown parameter %q", name)
	}
	return nil
}
