package analysis

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/linkage/internal/dynamo"
)

var ErrShortSignal = errors.New("analysis: signal too short")

// Series extracts column idx from a list of vectors.
func Series(states []dynamo.State, idx int) []float64 {
	out := make([]float64, 0, len(states))
	for _, s := range states {
		if idx >= 0 && idx < len(s) {
			out = append(out, s[idx])
		}
	}
	return out
}

// Spectrum returns the one-sided power spectrum of a signal sampled every
// dt seconds, mean removed. freqs are in Hz.
func Spectrum(signal []float64, dt float64) (freqs, power []float64, err error) {
	n := len(signal)
	if n < 4 {
		return nil, nil, errors.Wrapf(ErrShortSignal, "%d samples", n)
	}
	if dt <= 0 {
		return nil, nil, errors.Wrapf(dynamo.ErrParameterBounds, "dt %g", dt)
	}
	mean := stat.Mean(signal, nil)
	centered := make([]float64, n)
	for i, v := range signal {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)
	freqs = make([]float64, len(coeff))
	power = make([]float64, len(coeff))
	for i, c := range coeff {
		freqs[i] = fft.Freq(i) / dt
		a := cmplx.Abs(c)
		power[i] = a * a / float64(n)
	}
	return freqs, power, nil
}

// DominantPeriod returns the period of the strongest non-zero frequency,
// refined by parabolic interpolation between neighbouring bins.
func DominantPeriod(signal []float64, dt float64) (float64, error) {
	freqs, power, err := Spectrum(signal, dt)
	if err != nil {
		return 0, err
	}
	best := 1
	for i := 2; i < len(power); i++ {
		if power[i] > power[best] {
			best = i
		}
	}
	if power[best] <= 1e-20 {
		return 0, errors.New("analysis: flat signal has no period")
	}

	shift := 0.0
	if best > 1 && best < len(power)-1 {
		l, c, r := power[best-1], power[best], power[best+1]
		if den := l - 2*c + r; den != 0 {
			shift = 0.5 * (l - r) / den
		}
	}
	df := freqs[1] - freqs[0]
	f := freqs[best] + shift*df
	if f <= 0 || math.IsNaN(f) {
		return 0, errors.New("analysis: no positive dominant frequency")
	}
	return 1 / f, nil
}
