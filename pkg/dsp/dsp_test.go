package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(freq, sampleRate float64, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func TestButterBandpassReference(t *testing.T) {
	// butter(2, [0.1, 0.3], 'band') at a normalized Nyquist of 1
	c, err := ButterBandpass(2, 25, 75, 500)
	require.NoError(t, err)

	wantB := []float64{0.067455273889072, 0, -0.134910547778144, 0, 0.067455273889072}
	wantA := []float64{1, -2.673578905120267, 2.992361804127896, -1.674577314635261, 0.412801598096188}
	require.Len(t, c.B, len(wantB))
	require.Len(t, c.A, len(wantA))
	for i := range wantB {
		assert.InDelta(t, wantB[i], c.B[i], 1e-9, "b[%d]", i)
		assert.InDelta(t, wantA[i], c.A[i], 1e-9, "a[%d]", i)
	}
	assert.Equal(t, 4, c.Order())
}

func TestButterBandpassResponse(t *testing.T) {
	c, err := ButterBandpass(4, 1, 40, 500)
	require.NoError(t, err)
	require.Len(t, c.B, 9)
	require.Len(t, c.A, 9)

	// Numerator is k*(1 - z^-2)^4
	binom := []float64{1, 0, -4, 0, 6, 0, -4, 0, 1}
	for i, v := range binom {
		assert.InDelta(t, v*c.B[0], c.B[i], 1e-12)
	}

	gain := func(f float64) float64 {
		z := cmplx.Exp(complex(0, -2*math.Pi*f/500))
		var num, den complex128
		zk := complex(1, 0)
		for i := range c.B {
			num += complex(c.B[i], 0) * zk
			den += complex(c.A[i], 0) * zk
			zk *= z
		}
		return cmplx.Abs(num / den)
	}
	assert.InDelta(t, 0, gain(0), 1e-6)
	assert.InDelta(t, 1, gain(10), 1e-4)
	assert.InDelta(t, math.Sqrt2/2, gain(1), 1e-4)
	assert.InDelta(t, math.Sqrt2/2, gain(40), 1e-4)
	assert.InDelta(t, 0, gain(249.999), 1e-6)
}

func TestButterBandpassValidation(t *testing.T) {
	for _, tc := range []struct {
		name      string
		order     int
		low, high float64
		rate      int
	}{
		{"zero order", 0, 1, 40, 500},
		{"zero rate", 4, 1, 40, 0},
		{"low not positive", 4, 0, 40, 500},
		{"inverted", 4, 40, 1, 500},
		{"above nyquist", 4, 1, 250, 500},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ButterBandpass(tc.order, tc.low, tc.high, tc.rate)
			assert.Error(t, err)
		})
	}
}

func TestFiltFiltPreservesConstantThroughLowpass(t *testing.T) {
	// One-pole smoother with unit DC gain
	f, err := NewFilter(Coefficients{B: []float64{0.2}, A: []float64{1, -0.8}})
	require.NoError(t, err)
	assert.Equal(t, 6, f.PadLen())

	x := make([]float64, 20)
	for i := range x {
		x[i] = 3
	}
	y, err := f.FiltFilt(x)
	require.NoError(t, err)
	require.Len(t, y, len(x))
	for _, v := range y {
		assert.InDelta(t, 3.0, v, 1e-12)
	}
}

func TestFiltFiltBandpass(t *testing.T) {
	c, err := ButterBandpass(4, 1, 40, 500)
	require.NoError(t, err)
	f, err := NewFilter(c)
	require.NoError(t, err)
	assert.Equal(t, 27, f.PadLen())

	// DC offset is removed without an edge transient
	dc := make([]float64, 200)
	for i := range dc {
		dc[i] = 3
	}
	y, err := f.FiltFilt(dc)
	require.NoError(t, err)
	for _, v := range y {
		assert.InDelta(t, 0, v, 1e-6)
	}

	// An in-band tone passes with no phase shift away from the edges
	x := tone(10, 500, 200, 1)
	y, err = f.FiltFilt(x)
	require.NoError(t, err)
	for i := 40; i < 160; i++ {
		assert.InDelta(t, x[i], y[i], 0.05, "sample %d", i)
	}
}

func TestFiltFiltRejectsShortInput(t *testing.T) {
	c, err := ButterBandpass(4, 1, 40, 500)
	require.NoError(t, err)
	f, err := NewFilter(c)
	require.NoError(t, err)

	_, err = f.FiltFilt(make([]float64, 27))
	assert.ErrorIs(t, err, ErrChunkLength)
	_, err = f.FiltFilt(make([]float64, 28))
	assert.NoError(t, err)
}

func TestFrequencyBins(t *testing.T) {
	freqs := FrequencyBins(200, 500)
	require.Len(t, freqs, 101)
	assert.Equal(t, 0.0, freqs[0])
	assert.Equal(t, 2.5, freqs[1])
	assert.Equal(t, 250.0, freqs[100])

	assert.Len(t, FrequencyBins(7, 7), 4)
}

// naivePSD is a direct DFT rendition of the same estimator.
func naivePSD(x []float64, fs float64) []float64 {
	n := len(x)
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	w := make([]float64, n)
	sw := 0.0
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
		sw += w[i] * w[i]
	}

	out := make([]float64, n/2+1)
	for k := range out {
		var s complex128
		for i, v := range x {
			s += complex((v-mean)*w[i], 0) * cmplx.Exp(complex(0, -2*math.Pi*float64(k*i)/float64(n)))
		}
		p := real(s)*real(s) + imag(s)*imag(s)
		out[k] = p / (fs * sw)
		if k > 0 && !(n%2 == 0 && k == n/2) {
			out[k] *= 2
		}
	}
	return out
}

func TestPeriodogramMatchesDirectDFT(t *testing.T) {
	for _, x := range [][]float64{
		{0.3, -1.2, 2.5, 0.7, -0.4, 1.1, 0.0, -2.2},
		{1.5, 0.2, -0.9, 3.1, -1.7, 0.4, 2.2},
	} {
		freqs, psd := Periodogram(x, 100)
		want := naivePSD(x, 100)
		require.Len(t, psd, len(want))
		require.Len(t, freqs, len(want))
		for k := range want {
			assert.InDelta(t, want[k], psd[k], 1e-9, "n=%d bin %d", len(x), k)
		}
	}
}

func TestPeriodogramTonePeak(t *testing.T) {
	// 25 Hz lands on bin 10 for 200 samples at 500 Hz
	freqs, psd := Periodogram(tone(25, 500, 200, 2), 500)

	peak := 0
	for k := range psd {
		if psd[k] > psd[peak] {
			peak = k
		}
	}
	assert.Equal(t, 10, peak)
	assert.Equal(t, 25.0, freqs[peak])

	// Integrated density equals the tone power A²/2
	total := 0.0
	for _, v := range psd {
		total += v
	}
	assert.InDelta(t, 2.0, total*2.5, 0.01)
}

func TestPeriodogramRemovesMean(t *testing.T) {
	x := make([]float64, 16)
	for i := range x {
		x[i] = 7
	}
	_, psd := Periodogram(x, 100)
	for _, v := range psd {
		assert.InDelta(t, 0, v, 1e-20)
	}

	f, p := Periodogram(nil, 100)
	assert.Nil(t, f)
	assert.Nil(t, p)
}

func newTestExtractor(t *testing.T, bands ...Band) *Extractor {
	t.Helper()
	e, err := NewExtractor(ExtractorConfig{
		SampleRate: 500,
		ChunkLen:   200,
		Passband:   Passband{Low: 1, High: 40},
		Order:      4,
		Bands:      bands,
	})
	require.NoError(t, err)
	return e
}

func TestExtractorBandPowerIsMeanOfBins(t *testing.T) {
	e := newTestExtractor(t, StandardBands()...)
	chunk := tone(10, 500, 200, 1)

	features, err := e.Extract(chunk)
	require.NoError(t, err)
	require.Len(t, features, 4)

	filtered, err := e.filter.FiltFilt(chunk)
	require.NoError(t, err)
	freqs, psd := Periodogram(filtered, 500)

	for i, b := range StandardBands() {
		sum, n := 0.0, 0
		for k, f := range freqs {
			if f >= b.Low && f <= b.High {
				sum += psd[k]
				n++
			}
		}
		require.Positive(t, n, b.Name)
		assert.InDelta(t, sum/float64(n), features[i], 1e-12, b.Name)
		assert.GreaterOrEqual(t, features[i], 0.0)
	}

	// 10 Hz tone dominates alpha
	assert.Greater(t, features[2], features[0])
	assert.Greater(t, features[2], features[3])
}

func TestExtractorDegenerateBand(t *testing.T) {
	// Bins are 2.5 Hz apart; nothing falls in [13, 14]
	gap := Band{Name: "gap", Low: 13, High: 14}
	e := newTestExtractor(t, Beta, gap)

	cov := e.Coverage()
	require.Len(t, cov, 2)
	assert.Equal(t, 8, cov[0].Bins)
	assert.Equal(t, 12.5, cov[0].First)
	assert.Equal(t, 30.0, cov[0].Last)
	assert.True(t, cov[1].Degenerate())

	features, err := e.Extract(tone(13.5, 500, 200, 1))
	require.NoError(t, err)
	assert.Positive(t, features[0])
	assert.Equal(t, 0.0, features[1])
}

func TestExtractorChunkLength(t *testing.T) {
	e := newTestExtractor(t, Beta)

	_, err := e.Extract(make([]float64, 199))
	assert.ErrorIs(t, err, ErrChunkLength)

	_, err = NewExtractor(ExtractorConfig{
		SampleRate: 500, ChunkLen: 20, Order: 4,
		Passband: Passband{Low: 1, High: 40},
		Bands:    []Band{Beta},
	})
	assert.ErrorIs(t, err, ErrChunkLength)
}

func TestExtractorValidation(t *testing.T) {
	base := ExtractorConfig{
		SampleRate: 500, ChunkLen: 200, Order: 4,
		Passband: Passband{Low: 1, High: 40},
		Bands:    []Band{Beta},
	}

	cfg := base
	cfg.Bands = nil
	_, err := NewExtractor(cfg)
	assert.Error(t, err)

	cfg = base
	cfg.Bands = []Band{{Name: "bad", Low: 30, High: 12}}
	_, err = NewExtractor(cfg)
	assert.Error(t, err)

	cfg = base
	cfg.Passband = Passband{Low: 1, High: 300}
	_, err = NewExtractor(cfg)
	assert.Error(t, err)

	e, err := NewExtractor(base)
	require.NoError(t, err)
	assert.Equal(t, []Band{Beta}, e.Bands())
	assert.Len(t, e.Coefficients().A, 9)
}
