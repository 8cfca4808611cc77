package dsp

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrequencyBins returns the one-sided frequency grid of an n-point transform
// at sampleRate: bin k sits at k*sampleRate/n, for k in [0, n/2].
func FrequencyBins(n int, sampleRate float64) []float64 {
	freqs := make([]float64, n/2+1)
	for k := range freqs {
		freqs[k] = float64(k) * sampleRate / float64(n)
	}
	return freqs
}

// Periodogram estimates the one-sided power spectral density of x using a
// single Hann-windowed segment spanning the whole input. The mean is removed
// first and the result is scaled to a density (units²/Hz). It returns the
// frequency grid alongside the PSD.
func Periodogram(x []float64, sampleRate float64) (freqs, psd []float64) {
	n := len(x)
	if n == 0 {
		return nil, nil
	}

	w := periodicHann(n)
	mean := stat.Mean(x, nil)
	seg := make([]float64, n)
	for i, v := range x {
		seg[i] = (v - mean) * w[i]
	}

	spectrum := fft.FFTReal(seg)
	scale := 1 / (sampleRate * floats.Dot(w, w))

	psd = make([]float64, n/2+1)
	for k := range psd {
		mag := cmplx.Abs(spectrum[k])
		psd[k] = mag * mag * scale
	}

	// Fold negative frequencies; DC and (for even n) Nyquist appear once
	end := len(psd)
	if n%2 == 0 {
		end--
	}
	for k := 1; k < end; k++ {
		psd[k] *= 2
	}
	return FrequencyBins(n, sampleRate), psd
}

// periodicHann returns the n-point Hann window used for spectral analysis,
// i.e. the symmetric n+1 point window without its last sample.
func periodicHann(n int) []float64 {
	if n == 1 {
		return []float64{1}
	}
	return window.Hann(n + 1)[:n]
}
