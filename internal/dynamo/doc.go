// Package dynamo provides the numeric primitives shared by the simulation
// packages.
//
// The package defines the vector and interface vocabulary used to integrate
// constrained mechanisms over time:
//
//   - [State]: generalized coordinate vector (q, q̇, q̈ or stacked [q; q̇])
//   - [Control]: generalized forces applied by a drive
//   - [System]: interface for first-order systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper interface
//   - [Controller]: drive interface producing generalized forces
//   - [Metric] and [Observer]: run instrumentation
//
// # Thread Safety
//
// Nothing in this package is synchronized. Mechanism models are not
// reentrant; parallel runs must each own a private model (see sim.Ensemble).
package dynamo
