package dsp

import (
	"errors"
	"fmt"

	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Band is a named frequency range with inclusive bounds in Hz.
type Band struct {
	Name string  `mapstructure:"name" yaml:"name" json:"name"`
	Low  float64 `mapstructure:"low" yaml:"low" json:"low"`
	High float64 `mapstructure:"high" yaml:"high" json:"high"`
}

// Standard EEG rhythm bands.
var (
	Delta = Band{Name: "delta", Low: 0.5, High: 4}
	Theta = Band{Name: "theta", Low: 4, High: 8}
	Alpha = Band{Name: "alpha", Low: 8, High: 12}
	Beta  = Band{Name: "beta", Low: 12, High: 30}
)

// StandardBands returns delta, theta, alpha and beta in that order.
func StandardBands() []Band {
	return []Band{Delta, Theta, Alpha, Beta}
}

// Passband is the bandpass applied before spectral estimation.
type Passband struct {
	Low  float64
	High float64
}

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	SampleRate int
	ChunkLen   int
	Passband   Passband
	Order      int
	Bands      []Band
}

// BandCoverage describes which PSD bins a band averages over.
type BandCoverage struct {
	Band  Band
	Bins  int
	First float64 // lowest bin frequency in the band, 0 when Bins == 0
	Last  float64
}

// Degenerate reports whether no bin falls inside the band.
func (c BandCoverage) Degenerate() bool { return c.Bins == 0 }

// Extractor turns a raw chunk into a vector of band powers, one per
// configured band in declaration order. It holds only immutable state and
// is safe for concurrent use.
type Extractor struct {
	cfg    ExtractorConfig
	filter *Filter
	freqs  []float64
	bins   [][]int // PSD indices per band
}

// NewExtractor designs the filter and precomputes band bin membership.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("dsp: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.ChunkLen <= 0 {
		return nil, fmt.Errorf("dsp: chunk length must be positive, got %d", cfg.ChunkLen)
	}
	if len(cfg.Bands) == 0 {
		return nil, errors.New("dsp: at least one band is required")
	}
	for _, b := range cfg.Bands {
		if b.Low > b.High {
			return nil, fmt.Errorf("dsp: band %q has low %g above high %g", b.Name, b.Low, b.High)
		}
	}

	coeffs, err := ButterBandpass(cfg.Order, cfg.Passband.Low, cfg.Passband.High, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	filter, err := NewFilter(coeffs)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkLen <= filter.PadLen() {
		return nil, fmt.Errorf("%w: chunk length %d must exceed filter pad length %d",
			ErrChunkLength, cfg.ChunkLen, filter.PadLen())
	}

	e := &Extractor{
		cfg:    cfg,
		filter: filter,
		freqs:  FrequencyBins(cfg.ChunkLen, float64(cfg.SampleRate)),
		bins:   make([][]int, len(cfg.Bands)),
	}
	e.cfg.Bands = append([]Band(nil), cfg.Bands...)

	logger := logging.For("dsp")
	for i, b := range e.cfg.Bands {
		for k, f := range e.freqs {
			if f >= b.Low && f <= b.High {
				e.bins[i] = append(e.bins[i], k)
			}
		}
		if len(e.bins[i]) == 0 {
			logger.WithFields(logrus.Fields{
				"band": b.Name,
				"low":  b.Low,
				"high": b.High,
			}).Debug("band contains no frequency bins, power will be 0")
		}
	}
	return e, nil
}

// Extract filters the chunk, estimates its PSD and averages each band.
// A band without bins yields exactly 0.
func (e *Extractor) Extract(chunk []float64) ([]float64, error) {
	if len(chunk) != e.cfg.ChunkLen {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrChunkLength, len(chunk), e.cfg.ChunkLen)
	}

	filtered, err := e.filter.FiltFilt(chunk)
	if err != nil {
		return nil, err
	}
	_, psd := Periodogram(filtered, float64(e.cfg.SampleRate))

	features := make([]float64, len(e.bins))
	vals := make([]float64, 0, len(psd))
	for i, idx := range e.bins {
		if len(idx) == 0 {
			continue
		}
		vals = vals[:0]
		for _, k := range idx {
			vals = append(vals, psd[k])
		}
		features[i] = stat.Mean(vals, nil)
	}
	return features, nil
}

// Bands returns the configured bands in order.
func (e *Extractor) Bands() []Band {
	return append([]Band(nil), e.cfg.Bands...)
}

// Coefficients returns the designed bandpass filter.
func (e *Extractor) Coefficients() Coefficients {
	return e.filter.Coefficients()
}

// Coverage reports bin membership for every band.
func (e *Extractor) Coverage() []BandCoverage {
	out := make([]BandCoverage, len(e.bins))
	for i, idx := range e.bins {
		out[i] = BandCoverage{Band: e.cfg.Bands[i], Bins: len(idx)}
		if len(idx) > 0 {
			out[i].First = e.freqs[idx[0]]
			out[i].Last = e.freqs[idx[len(idx)-1]]
		}
	}
	return out
}
