// Package eeg holds the raw-signal side of the monitor: loading a recording,
// serving it as fixed-length chunks, and keeping the most recent samples for
// display.
//
// RingBuffer implements a fixed-size circular buffer of samples.
// It starts zero-filled, so it always holds exactly Capacity() samples;
// each Write evicts the oldest samples.
//
// Usage:
//
//	rb := NewRingBuffer(500, 2*time.Second) // 1000 samples at 500 Hz
//	rb.Write(chunk)
//	view := rb.Snapshot()
package eeg

import "time"

// RingBuffer is a fixed-size circular buffer of float64 samples.
// It has a single writer and performs no locking.
type RingBuffer struct {
	data     []float64
	capacity int // total capacity in samples
	writePos int // next write position, also the oldest sample
}

// NewRingBuffer creates a buffer holding duration worth of samples at sampleRate.
func NewRingBuffer(sampleRate int, duration time.Duration) *RingBuffer {
	return NewRingBufferSize(int(float64(sampleRate) * duration.Seconds()))
}

// NewRingBufferSize creates a buffer holding exactly capacity samples.
// Capacity below one is raised to one.
func NewRingBufferSize(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]float64, capacity),
		capacity: capacity,
	}
}

// Write appends samples, overwriting the oldest ones.
func (rb *RingBuffer) Write(samples []float64) {
	n := len(samples)
	if n == 0 {
		return
	}

	// Only the last 'capacity' samples can survive
	if n >= rb.capacity {
		copy(rb.data, samples[n-rb.capacity:])
		rb.writePos = 0
		return
	}

	spaceToEnd := rb.capacity - rb.writePos
	if n <= spaceToEnd {
		copy(rb.data[rb.writePos:], samples)
		rb.writePos += n
		if rb.writePos == rb.capacity {
			rb.writePos = 0
		}
		return
	}

	copy(rb.data[rb.writePos:], samples[:spaceToEnd])
	copy(rb.data, samples[spaceToEnd:])
	rb.writePos = n - spaceToEnd
}

// Snapshot returns the buffered samples oldest first.
// The returned slice is a copy.
func (rb *RingBuffer) Snapshot() []float64 {
	out := make([]float64, rb.capacity)
	first := copy(out, rb.data[rb.writePos:])
	copy(out[first:], rb.data[:rb.writePos])
	return out
}

// Capacity returns the number of samples the buffer holds.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}
