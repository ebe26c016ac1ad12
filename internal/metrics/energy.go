package metrics

import (
	"math"

	"github.com/san-kum/linkage/internal/dynamo"
)

// Energy is the mean mechanical energy over the observed states.
type Energy struct {
	name    string
	sys     dynamo.Hamiltonian
	sum     float64
	last    float64
	samples int
}

func NewEnergy(sys dynamo.Hamiltonian) *Energy {
	return &Energy{name: "energy", sys: sys}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(x dynamo.State, u dynamo.Control, t float64) {
	v := e.sys.Energy(x)
	if math.IsNaN(v) {
		return
	}
	e.sum += v
	e.last = v
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

// Last returns the most recent energy sample.
func (e *Energy) Last() float64 { return e.last }

func (e *Energy) Reset() {
	e.sum = 0
	e.last = 0
	e.samples = 0
}

// EnergyDrift is the largest relative energy change against the first
// sample. Systems that do not implement dynamo.Hamiltonian report zero.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	maxDrift      float64
	samples       int
	dyn           dynamo.System
}

func NewEnergyDrift(dyn dynamo.System) *EnergyDrift {
	return &EnergyDrift{
		name: "energy_drift",
		dyn:  dyn,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	ec, ok := e.dyn.(dynamo.Hamiltonian)
	if !ok {
		return
	}
	energy := ec.Energy(x)
	if math.IsNaN(energy) {
		return
	}
	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	// Potential energy is defined up to a constant; use an absolute drift
	// when the reference is near zero.
	ref := math.Abs(e.initialEnergy)
	if ref < 1e-9 {
		ref = 1
	}
	e.maxDrift = math.Max(e.maxDrift, math.Abs(energy-e.initialEnergy)/ref)
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}
