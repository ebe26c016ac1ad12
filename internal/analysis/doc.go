// Package analysis characterises recorded mechanism trajectories:
//
//   - [Spectrum], [DominantPeriod]: power spectrum of one coordinate
//   - [Crossings], [CrossingPeriod]: level crossings and the period they imply
//   - [Closure]: how far a cyclic trajectory is from closing on itself
//   - [PhasePortrait], [PointTrace]: coordinate against its rate, or the
//     path of one point (a coupler curve)
//   - [LyapunovExponent]: largest exponent by trajectory separation
//
// # Usage
//
//	q := result.Positions()
//	period, err := analysis.DominantPeriod(analysis.Series(q, 4), dt)
package analysis
