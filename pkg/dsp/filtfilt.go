package dsp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrChunkLength is returned when an input does not have the expected length.
var ErrChunkLength = errors.New("dsp: unexpected chunk length")

// Filter applies a fixed IIR filter forward and backward for zero phase.
// Steady-state initial conditions are solved once at construction.
// A Filter is immutable and safe for concurrent use.
type Filter struct {
	coeffs Coefficients
	zi     []float64
	padLen int
}

// NewFilter prepares c for zero-phase filtering.
func NewFilter(c Coefficients) (*Filter, error) {
	if len(c.A) == 0 || len(c.B) == 0 {
		return nil, errors.New("dsp: empty filter coefficients")
	}
	if c.A[0] == 0 {
		return nil, errors.New("dsp: leading denominator coefficient is zero")
	}

	// Normalize and equalize lengths
	n := max(len(c.A), len(c.B))
	b := make([]float64, n)
	a := make([]float64, n)
	for i, v := range c.B {
		b[i] = v / c.A[0]
	}
	for i, v := range c.A {
		a[i] = v / c.A[0]
	}

	zi, err := steadyState(b, a)
	if err != nil {
		return nil, err
	}
	return &Filter{
		coeffs: Coefficients{B: b, A: a},
		zi:     zi,
		padLen: 3 * n,
	}, nil
}

// Coefficients returns a copy of the normalized coefficients.
func (f *Filter) Coefficients() Coefficients {
	return Coefficients{
		B: append([]float64(nil), f.coeffs.B...),
		A: append([]float64(nil), f.coeffs.A...),
	}
}

// PadLen returns the number of samples reflected onto each end of the input.
// Inputs must be strictly longer than this.
func (f *Filter) PadLen() int { return f.padLen }

// FiltFilt filters x forward then backward. The input is extended at both
// ends by an odd reflection of PadLen samples to suppress edge transients.
func (f *Filter) FiltFilt(x []float64) ([]float64, error) {
	if len(x) <= f.padLen {
		return nil, fmt.Errorf("%w: input of %d samples must be longer than pad of %d", ErrChunkLength, len(x), f.padLen)
	}

	ext := oddExtend(x, f.padLen)

	y := f.lfilter(ext, ext[0])
	reverse(y)
	y = f.lfilter(y, y[0])
	reverse(y)

	return y[f.padLen : len(y)-f.padLen], nil
}

// lfilter runs the transposed direct form II recursion with the initial
// state scaled to x0.
func (f *Filter) lfilter(x []float64, x0 float64) []float64 {
	b, a := f.coeffs.B, f.coeffs.A
	n := len(a)

	z := make([]float64, n-1)
	for i, v := range f.zi {
		z[i] = v * x0
	}

	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + at(z, 0)
		for k := 0; k < n-2; k++ {
			z[k] = b[k+1]*xi + z[k+1] - a[k+1]*yi
		}
		if n > 1 {
			z[n-2] = b[n-1]*xi - a[n-1]*yi
		}
		y[i] = yi
	}
	return y
}

// steadyState solves (I - Cᵀ) zi = b[1:] - a[1:]·b[0], where C is the
// companion matrix of a. The result is the filter state for a unit step.
func steadyState(b, a []float64) ([]float64, error) {
	n := len(a) - 1
	if n == 0 {
		return nil, nil
	}

	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
		m.Set(i, 0, m.At(i, 0)+a[i+1])
		if i+1 < n {
			m.Set(i, i+1, -1)
		}
	}

	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("dsp: solving filter initial conditions: %w", err)
	}
	return mat.Col(nil, 0, &zi), nil
}

// oddExtend reflects n samples about each endpoint: 2*x[0]-x[n..1] before
// and 2*x[last]-x[last-1..last-n] after.
func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	out := make([]float64, 0, len(x)+2*n)
	for i := n; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}
	out = append(out, x...)
	for i := 1; i <= n; i++ {
		out = append(out, 2*x[last]-x[last-i])
	}
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

func at(z []float64, i int) float64 {
	if i < len(z) {
		return z[i]
	}
	return 0
}
