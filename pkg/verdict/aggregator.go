// Package verdict pools per-chunk labels into periodic majority-vote
// verdicts.
package verdict

import (
	"fmt"
	"time"

	"github.com/realtime-ai/focusstream/pkg/classifier"
)

// Verdict is one window-level decision.
type Verdict struct {
	Label classifier.Label
	// Confidence is the fraction of the window that agreed with Label.
	Confidence float64
}

// String renders the verdict as "Focused (Confidence: 0.75)".
func (v Verdict) String() string {
	name := "Not Focused"
	if v.Label == classifier.Focused {
		name = "Focused"
	}
	return fmt.Sprintf("%s (Confidence: %.2f)", name, v.Confidence)
}

// Aggregator counts down windowSize labels and then emits a verdict by strict
// majority, clearing its history. It never fails and is not safe for
// concurrent use.
type Aggregator struct {
	windowSize    int
	chunkDuration time.Duration

	history   []classifier.Label
	countdown int
	last      Verdict
	hasLast   bool
}

// New creates an aggregator. A windowSize below one is raised to one.
func New(windowSize int, chunkDuration time.Duration) *Aggregator {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Aggregator{
		windowSize:    windowSize,
		chunkDuration: chunkDuration,
		history:       make([]classifier.Label, 0, windowSize),
		countdown:     windowSize,
	}
}

// Add records a label. When the window completes it returns the new verdict
// and true.
func (a *Aggregator) Add(label classifier.Label) (Verdict, bool) {
	a.history = append(a.history, label)
	a.countdown--
	if a.countdown > 0 {
		return Verdict{}, false
	}

	focused := 0
	for _, l := range a.history {
		if l == classifier.Focused {
			focused++
		}
	}
	total := len(a.history)
	ratio := float64(focused) / float64(total)

	v := Verdict{Label: classifier.NotFocused, Confidence: 1 - ratio}
	if float64(focused) > float64(total)/2 {
		v = Verdict{Label: classifier.Focused, Confidence: ratio}
	}

	a.history = a.history[:0]
	a.countdown = a.windowSize
	a.last, a.hasLast = v, true
	return v, true
}

// Remaining is the time until the next verdict.
func (a *Aggregator) Remaining() time.Duration {
	return time.Duration(a.countdown) * a.chunkDuration
}

// Progress is the elapsed fraction of the current window, in [0, 1).
func (a *Aggregator) Progress() float64 {
	return float64(a.windowSize-a.countdown) / float64(a.windowSize)
}

// Countdown is the number of labels left before the next verdict.
func (a *Aggregator) Countdown() int { return a.countdown }

// Pending is the number of labels collected since the last verdict.
func (a *Aggregator) Pending() int { return len(a.history) }

// WindowSize returns the configured window length in chunks.
func (a *Aggregator) WindowSize() int { return a.windowSize }

// Last returns the most recent verdict, if any.
func (a *Aggregator) Last() (Verdict, bool) { return a.last, a.hasLast }
