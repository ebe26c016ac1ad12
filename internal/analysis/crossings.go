package analysis

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Crossings returns the interpolated times at which signal crosses level
// upwards.
func Crossings(times, signal []float64, level float64) []float64 {
	var out []float64
	for i := 1; i < len(signal) && i < len(times); i++ {
		a, b := signal[i-1], signal[i]
		if a < level && b >= level {
			frac := (level - a) / (b - a)
			if math.IsNaN(frac) || math.IsInf(frac, 0) {
				frac = 0.5
			}
			out = append(out, times[i-1]+frac*(times[i]-times[i-1]))
		}
	}
	return out
}

// CrossingPeriod is the mean spacing of upward crossings of the signal
// mean, and its standard deviation.
func CrossingPeriod(times, signal []float64) (mean, std float64, err error) {
	level := stat.Mean(signal, nil)
	c := Crossings(times, signal, level)
	if len(c) < 2 {
		return 0, 0, errors.Wrapf(ErrShortSignal, "%d crossings", len(c))
	}
	gaps := make([]float64, len(c)-1)
	floats.SubTo(gaps, c[1:], c[:len(c)-1])
	mean, std = stat.MeanStdDev(gaps, nil)
	if len(gaps) == 1 {
		std = 0
	}
	return mean, std, nil
}
