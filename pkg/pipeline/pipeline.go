// Package pipeline ties the signal source, feature extractor, classifier and
// verdict aggregator together. One call to Advance processes one chunk.
package pipeline

import (
	"fmt"
	"time"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/dsp"
	"github.com/realtime-ai/focusstream/pkg/eeg"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/realtime-ai/focusstream/pkg/verdict"
	"github.com/sirupsen/logrus"
)

// Options selects the pipeline variant.
type Options struct {
	SampleRate  int
	ChunkLen    int
	WindowSize  int
	Bands       []dsp.Band
	Passband    dsp.Passband
	FilterOrder int
	// DisplayBuffer keeps the last two seconds of raw signal for plotting.
	// When false each snapshot carries only the latest chunk.
	DisplayBuffer bool
}

// DefaultOptions returns the 500 Hz, 200-sample, 25-chunk beta-band setup.
func DefaultOptions() Options {
	return Options{
		SampleRate:    500,
		ChunkLen:      200,
		WindowSize:    25,
		Bands:         []dsp.Band{dsp.Beta},
		Passband:      dsp.Passband{Low: 1, High: 40},
		FilterOrder:   4,
		DisplayBuffer: true,
	}
}

// ChunkDuration is the real-time span of one chunk.
func (o Options) ChunkDuration() time.Duration {
	return time.Duration(o.ChunkLen) * time.Second / time.Duration(o.SampleRate)
}

// BandNames returns the configured band names in order.
func (o Options) BandNames() []string {
	names := make([]string, len(o.Bands))
	for i, b := range o.Bands {
		names[i] = b.Name
	}
	return names
}

// dimensioned is implemented by models that know their input size.
type dimensioned interface {
	Dim() int
}

// Pipeline owns the per-stream state. Advance is its only mutator and must
// not be called concurrently.
type Pipeline struct {
	opts      Options
	source    *eeg.Source
	model     classifier.Model
	extractor *dsp.Extractor
	display   *eeg.RingBuffer
	verdicts  *verdict.Aggregator
	timeAxis  []float64
	seq       uint64
	logger    *logrus.Entry
}

// New builds a pipeline over src. The model is shared and never mutated.
func New(src *eeg.Source, model classifier.Model, opts Options) (*Pipeline, error) {
	if src == nil {
		return nil, fmt.Errorf("pipeline: nil source")
	}
	if model == nil {
		return nil, fmt.Errorf("pipeline: nil model")
	}
	if src.ChunkLen() != opts.ChunkLen {
		return nil, fmt.Errorf("pipeline: source chunk length %d, configured %d", src.ChunkLen(), opts.ChunkLen)
	}
	if opts.WindowSize < 1 {
		return nil, fmt.Errorf("pipeline: verdict window must be at least one chunk, got %d", opts.WindowSize)
	}
	if m, ok := model.(dimensioned); ok && m.Dim() != len(opts.Bands) {
		return nil, fmt.Errorf("%w: model expects %d features, %d bands configured",
			classifier.ErrDimension, m.Dim(), len(opts.Bands))
	}

	extractor, err := dsp.NewExtractor(dsp.ExtractorConfig{
		SampleRate: opts.SampleRate,
		ChunkLen:   opts.ChunkLen,
		Passband:   opts.Passband,
		Order:      opts.FilterOrder,
		Bands:      opts.Bands,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		opts:      opts,
		source:    src,
		model:     model,
		extractor: extractor,
		verdicts:  verdict.New(opts.WindowSize, opts.ChunkDuration()),
		logger:    logging.For("pipeline"),
	}

	bufLen := opts.ChunkLen
	if opts.DisplayBuffer {
		p.display = eeg.NewRingBuffer(opts.SampleRate, 2*time.Second)
		bufLen = p.display.Capacity()
	}
	p.timeAxis = TimeAxis(bufLen, opts.SampleRate)

	p.logger.WithFields(logrus.Fields{
		"sample_rate":    opts.SampleRate,
		"chunk_len":      opts.ChunkLen,
		"window":         opts.WindowSize,
		"bands":          opts.BandNames(),
		"display_buffer": opts.DisplayBuffer,
	}).Info("pipeline ready")
	return p, nil
}

// Advance processes the next chunk and returns the resulting state.
func (p *Pipeline) Advance() (*Snapshot, error) {
	chunk := p.source.Next()

	buffer := chunk
	if p.display != nil {
		p.display.Write(chunk)
		buffer = p.display.Snapshot()
	}

	features, err := p.extractor.Extract(chunk)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	label := p.model.Classify(features)

	v, emitted := p.verdicts.Add(label)
	if emitted {
		p.logger.WithFields(logrus.Fields{
			"verdict":    v.Label.String(),
			"confidence": v.Confidence,
		}).Debug("verdict emitted")
	} else {
		v, _ = p.verdicts.Last()
	}
	_, hasVerdict := p.verdicts.Last()

	p.seq++
	return &Snapshot{
		Seq:        p.seq,
		Buffer:     buffer,
		TimeAxis:   p.timeAxis,
		Features:   features,
		Label:      label,
		Verdict:    v,
		HasVerdict: hasVerdict,
		NewVerdict: emitted,
		Remaining:  p.verdicts.Remaining(),
		Progress:   p.verdicts.Progress(),
	}, nil
}

// Options returns the configuration the pipeline was built with.
func (p *Pipeline) Options() Options { return p.opts }

// Extractor exposes the feature extractor for inspection.
func (p *Pipeline) Extractor() *dsp.Extractor { return p.extractor }

// Ticks returns how many chunks have been processed.
func (p *Pipeline) Ticks() uint64 { return p.seq }

// TimeAxis returns n evenly spaced timestamps from 0 to n/sampleRate seconds,
// both ends included.
func TimeAxis(n, sampleRate int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	stop := float64(n) / float64(sampleRate)
	step := stop / float64(n-1)
	for i := range out {
		out[i] = float64(i) * step
	}
	out[n-1] = stop
	return out
}
