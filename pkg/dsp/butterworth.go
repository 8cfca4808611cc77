// Package dsp implements the spectral feature path: Butterworth bandpass
// design, zero-phase filtering, single-segment periodogram and band power
// extraction.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Coefficients is a digital IIR filter in transfer-function form.
// A[0] is always 1 and len(A) == len(B).
type Coefficients struct {
	B []float64
	A []float64
}

// Order returns the filter order (number of poles).
func (c Coefficients) Order() int { return len(c.A) - 1 }

// ButterBandpass designs a digital Butterworth bandpass filter of the given
// order for the passband [low, high] Hz at sampleRate. The resulting filter
// has 2*order poles.
//
// The design follows the classic analog route: normalized lowpass prototype,
// frequency prewarping, lowpass-to-bandpass transform and bilinear mapping,
// all in zero-pole-gain form before expanding to polynomials.
func ButterBandpass(order int, low, high float64, sampleRate int) (Coefficients, error) {
	if order < 1 {
		return Coefficients{}, fmt.Errorf("dsp: filter order must be >= 1, got %d", order)
	}
	if sampleRate <= 0 {
		return Coefficients{}, fmt.Errorf("dsp: sample rate must be positive, got %d", sampleRate)
	}
	nyq := float64(sampleRate) / 2
	if !(low > 0 && low < high && high < nyq) {
		return Coefficients{}, fmt.Errorf("dsp: passband [%g, %g] Hz must satisfy 0 < low < high < %g", low, high, nyq)
	}

	// Prewarp the normalized edges for a bilinear transform with fs = 2
	const fs = 2.0
	w1 := 2 * fs * math.Tan(math.Pi*(low/nyq)/fs)
	w2 := 2 * fs * math.Tan(math.Pi*(high/nyq)/fs)

	poles := buttap(order)
	zeros, poles, gain := lowpassToBandpass(poles, math.Sqrt(w1*w2), w2-w1)
	zeros, poles, gain = bilinear(zeros, poles, gain, fs)

	b := poly(zeros)
	for i := range b {
		b[i] *= gain
	}
	return Coefficients{B: b, A: poly(poles)}, nil
}

// buttap returns the poles of an analog Butterworth lowpass prototype with
// unit cutoff. The prototype has no zeros and unit gain.
func buttap(order int) []complex128 {
	poles := make([]complex128, 0, order)
	for m := -order + 1; m < order; m += 2 {
		theta := math.Pi * float64(m) / float64(2*order)
		poles = append(poles, -cmplx.Exp(complex(0, theta)))
	}
	return poles
}

// lowpassToBandpass maps a zero-free lowpass prototype to a bandpass centred
// on wo with bandwidth bw. Each pole splits into a conjugate-symmetric pair
// and order zeros land at the origin.
func lowpassToBandpass(poles []complex128, wo, bw float64) ([]complex128, []complex128, float64) {
	n := len(poles)
	wo2 := complex(wo*wo, 0)

	bp := make([]complex128, 0, 2*n)
	for _, p := range poles {
		lp := p * complex(bw/2, 0)
		root := cmplx.Sqrt(lp*lp - wo2)
		bp = append(bp, lp+root)
	}
	for _, p := range poles {
		lp := p * complex(bw/2, 0)
		root := cmplx.Sqrt(lp*lp - wo2)
		bp = append(bp, lp-root)
	}

	zeros := make([]complex128, n)
	return zeros, bp, math.Pow(bw, float64(n))
}

// bilinear maps analog zeros/poles to the z-plane. Zeros missing relative to
// the pole count are placed at Nyquist (z = -1).
func bilinear(zeros, poles []complex128, gain, fs float64) ([]complex128, []complex128, float64) {
	fs2 := complex(2*fs, 0)

	num := complex(1, 0)
	zz := make([]complex128, 0, len(poles))
	for _, z := range zeros {
		zz = append(zz, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	den := complex(1, 0)
	pz := make([]complex128, 0, len(poles))
	for _, p := range poles {
		pz = append(pz, (fs2+p)/(fs2-p))
		den *= fs2 - p
	}
	for len(zz) < len(pz) {
		zz = append(zz, -1)
	}
	return zz, pz, gain * real(num/den)
}

// poly expands roots into monic polynomial coefficients, highest power first.
// Roots come in conjugate pairs, so only the real parts are kept.
func poly(roots []complex128) []float64 {
	c := make([]complex128, len(roots)+1)
	c[0] = 1
	for i, r := range roots {
		for j := i + 1; j > 0; j-- {
			c[j] -= r * c[j-1]
		}
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}
