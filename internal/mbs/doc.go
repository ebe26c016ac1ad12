// Package mbs models planar rigid multibody mechanisms in natural (fully
// Cartesian) coordinates.
//
// A mechanism is described by a [ModelDefinition] (points, extra coordinates,
// bodies and constraints) and then assembled once into an [AssembledModel]
// that owns the generalized vectors q, q̇ and q̈, the constraint residual Φ and
// the sparse Jacobians derived from it:
//
//   - Φ_q: ∂Φ/∂q, one row per constraint equation
//   - Φ̇_q: the time derivative of Φ_q
//   - ∂(Φ_q·q̇)/∂q: the bilinear term used by acceleration-level equations
//
// Each [Constraint] variant registers the (row, column) slots it writes
// exactly once, in [Constraint.BuildSparseStructures], and afterwards only
// refreshes numeric values in [Constraint.Update]. Slots are plain indices
// into arena-owned [Sparse] matrices.
//
// # Kinematic consistency
//
// [AssembledModel.ComputeDependentPosVelAcc] partitions q into independent
// (driving) and dependent coordinates and brings the model through the stages
//
//	Uninitialized → PositionConsistent → VelocityConsistent → AccelerationConsistent
//
// Position solving is a damped Newton-Raphson iteration bounded by an
// iteration cap; non-convergence is reported in [KinematicsResult], never as
// an error. A singular Jacobian during the velocity or acceleration solve is
// reported as [ErrSingularJacobian].
//
// # Thread Safety
//
// An AssembledModel is not reentrant. Every evaluation writes into
// model-owned buffers, so concurrent users must each own a private model
// (assemble the same definition once per worker).
package mbs
