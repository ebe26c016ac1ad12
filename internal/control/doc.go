// Package control provides drive controllers for mechanisms.
//
// A controller returns generalized forces, one entry per coordinate of q,
// which the dynamics add to the gravity and point forces:
//
//   - [PID]: drives one coordinate toward a target that may ramp at a
//     constant rate, for example a crank angle
//   - [None]: zero forces
//
// # Usage
//
//	pid := control.NewPID(4, 0, 0, 0) // coordinate, Kp, Ki, Kd
//	pid.Rate = 2 * math.Pi            // one turn per second
//	s := sim.New(sys, integ, pid)
//
// PID implements [dynamo.Configurable] for live tuning.
package control
