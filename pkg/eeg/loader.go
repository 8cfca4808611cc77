package eeg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/sbinet/npyio"
	"github.com/sbinet/npyio/npz"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedFormat is returned for files Load cannot decode.
var ErrUnsupportedFormat = errors.New("eeg: unsupported recording format")

// Array names looked up in .npz archives.
const (
	npzSignalKey    = "signal"
	npzRateKey      = "fs"
	npzChunkSizeKey = "chunk_size"
	npzLabelsKey    = "labels"
)

// Recording is a fully loaded signal.
type Recording struct {
	Samples []float64
	// SampleRate is 0 when the file does not carry one.
	SampleRate int
	// ChunkSize and Labels are optional ground-truth metadata written by the
	// signal generator: one label (1 focused, 0 not) per ChunkSize samples.
	ChunkSize int
	Labels    []int64
	Path      string
}

// Duration returns the recording length in seconds, or 0 if the rate is unknown.
func (r *Recording) Duration() float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	return float64(len(r.Samples)) / float64(r.SampleRate)
}

// LabelAt returns the ground-truth label covering sample offset, if the
// recording carries labels.
func (r *Recording) LabelAt(offset int) (int64, bool) {
	if r.ChunkSize <= 0 || offset < 0 {
		return 0, false
	}
	i := offset / r.ChunkSize
	if i >= len(r.Labels) {
		return 0, false
	}
	return r.Labels[i], true
}

// Load reads a recording, choosing the decoder by file extension:
// .npz (numpy archive with a "signal" array), .npy, or .wav.
func Load(path string) (*Recording, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("data file not found: %w", err)
	}

	logger := logging.For("loader").WithField("path", path)

	var (
		rec *Recording
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".npz":
		rec, err = loadNPZ(path, logger)
	case ".npy":
		rec, err = loadNPY(path)
	case ".wav":
		rec, err = loadWAV(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(rec.Samples) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptySignal)
	}
	rec.Path = path

	logger.WithFields(logrus.Fields{
		"samples":     len(rec.Samples),
		"sample_rate": rec.SampleRate,
	}).Info("data loaded")
	return rec, nil
}

func loadNPZ(path string, logger *logrus.Entry) (*Recording, error) {
	f, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening npz %s: %w", path, err)
	}
	defer f.Close()

	keys := make(map[string]string, len(f.Keys()))
	for _, k := range f.Keys() {
		keys[strings.TrimSuffix(k, ".npy")] = k
	}

	signalKey, ok := keys[npzSignalKey]
	if !ok {
		return nil, fmt.Errorf("npz %s: no %q array", path, npzSignalKey)
	}

	rec := &Recording{}
	if err := f.Read(signalKey, &rec.Samples); err != nil {
		return nil, fmt.Errorf("reading %q from %s: %w", npzSignalKey, path, err)
	}

	// Metadata is optional; a missing or oddly typed entry is not fatal
	if k, ok := keys[npzRateKey]; ok {
		if v, err := readNPZScalar(f, k); err == nil {
			rec.SampleRate = int(v)
		} else {
			logger.WithError(err).Debug("ignoring sampling rate entry")
		}
	}
	if k, ok := keys[npzChunkSizeKey]; ok {
		if v, err := readNPZScalar(f, k); err == nil {
			rec.ChunkSize = int(v)
		}
	}
	if k, ok := keys[npzLabelsKey]; ok {
		if err := f.Read(k, &rec.Labels); err != nil {
			logger.WithError(err).Debug("ignoring labels entry")
			rec.Labels = nil
		}
	}
	return rec, nil
}

// readNPZScalar reads a 0-d or 1-element array stored as either int64 or float64.
func readNPZScalar(f *npz.Reader, key string) (float64, error) {
	var ints []int64
	if err := f.Read(key, &ints); err == nil && len(ints) > 0 {
		return float64(ints[0]), nil
	}
	var floats []float64
	if err := f.Read(key, &floats); err != nil {
		return 0, err
	}
	if len(floats) == 0 {
		return 0, fmt.Errorf("%s: empty array", key)
	}
	return floats[0], nil
}

func loadNPY(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec := &Recording{}
	if err := npyio.Read(f, &rec.Samples); err != nil {
		return nil, fmt.Errorf("reading npy %s: %w", path, err)
	}
	return rec, nil
}

func loadWAV(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file %s", ErrUnsupportedFormat, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading samples from %s: %w", path, err)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth < 1 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, bitDepth)
	}

	// First channel only, normalized to [-1.0, 1.0]
	maxVal := float64(int64(1) << (uint(bitDepth) - 1))
	samples := make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float64(buf.Data[i])/maxVal)
	}

	return &Recording{
		Samples:    samples,
		SampleRate: int(decoder.SampleRate),
	}, nil
}
