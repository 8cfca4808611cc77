package eeg

import (
	"errors"
	"fmt"

	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptySignal is returned when a recording holds no samples.
	ErrEmptySignal = errors.New("eeg: empty signal")
	// ErrShortSignal is returned when a recording is shorter than one chunk.
	ErrShortSignal = errors.New("eeg: signal shorter than one chunk")
)

// Source serves a preloaded recording as an endless series of fixed-length
// chunks. When the next chunk would run past the end of the recording the
// cursor wraps to zero and the tail samples are skipped, so a short chunk is
// never returned.
//
// Source has a single caller (the pipeline driver) and is not safe for
// concurrent use.
type Source struct {
	samples  []float64
	chunkLen int
	cursor   int
	wraps    int
	logger   *logrus.Entry
}

// NewSource wraps samples. The slice is not copied and must not be modified
// afterwards.
func NewSource(samples []float64, chunkLen int) (*Source, error) {
	if chunkLen <= 0 {
		return nil, fmt.Errorf("eeg: chunk length must be positive, got %d", chunkLen)
	}
	if len(samples) == 0 {
		return nil, ErrEmptySignal
	}
	if len(samples) < chunkLen {
		return nil, fmt.Errorf("%w: %d samples, chunk length %d", ErrShortSignal, len(samples), chunkLen)
	}
	return &Source{
		samples:  samples,
		chunkLen: chunkLen,
		logger: logging.For("source").WithFields(logrus.Fields{
			"samples":   len(samples),
			"chunk_len": chunkLen,
		}),
	}, nil
}

// Next returns a copy of the next chunk and advances the cursor.
func (s *Source) Next() []float64 {
	chunk := make([]float64, s.chunkLen)
	copy(chunk, s.samples[s.cursor:s.cursor+s.chunkLen])

	s.cursor += s.chunkLen
	if s.cursor+s.chunkLen > len(s.samples) {
		s.cursor = 0
		s.wraps++
		s.logger.WithField("wraps", s.wraps).Debug("reached end of data, looping back")
	}
	return chunk
}

// ChunkLen returns the number of samples per chunk.
func (s *Source) ChunkLen() int { return s.chunkLen }

// Len returns the number of samples in the recording.
func (s *Source) Len() int { return len(s.samples) }

// Cursor returns the offset of the next chunk.
func (s *Source) Cursor() int { return s.cursor }

// Wraps returns how many times the cursor has wrapped to zero.
func (s *Source) Wraps() int { return s.wraps }

// ChunkStart returns the sample offset of the index-th chunk (0-based) that
// a Source over total samples serves. Tail samples that do not fill a chunk
// are skipped, as in Next.
func ChunkStart(index, total, chunkLen int) int {
	if chunkLen <= 0 || total < chunkLen || index < 0 {
		return 0
	}
	usable := (total / chunkLen) * chunkLen
	return (index * chunkLen) % usable
}
