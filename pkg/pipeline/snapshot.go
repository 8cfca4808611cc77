package pipeline

import (
	"fmt"
	"time"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/verdict"
)

// Display colors for the instantaneous label.
const (
	ColorFocused    = "green"
	ColorNotFocused = "red"
)

// Snapshot is the state after one Advance. It is never modified after
// Advance returns; TimeAxis is shared between snapshots and is read-only.
type Snapshot struct {
	Seq      uint64
	Buffer   []float64
	TimeAxis []float64
	Features []float64
	Label    classifier.Label

	// Verdict is the most recent verdict; valid only when HasVerdict.
	Verdict    verdict.Verdict
	HasVerdict bool
	// NewVerdict is set on the tick that produced Verdict.
	NewVerdict bool

	Remaining time.Duration
	Progress  float64
}

// Payload is the per-tick message sent to subscribers.
type Payload struct {
	EEGBuffer         []float64 `json:"eeg_buffer"`
	TimeAxis          []float64 `json:"time_axis"`
	CurrentFocusText  string    `json:"current_focus_text"`
	CurrentFocusColor string    `json:"current_focus_color"`
	TimerText         string    `json:"timer_text"`
	LastVerdictText   string    `json:"last_verdict_text"`
	ProgressPercent   float64   `json:"progress_percent"`
}

// Payload renders the snapshot for the wire.
func (s *Snapshot) Payload() Payload {
	color := ColorNotFocused
	if s.Label == classifier.Focused {
		color = ColorFocused
	}

	last := "No verdict yet"
	if s.HasVerdict {
		last = s.Verdict.String()
	}

	return Payload{
		EEGBuffer:         s.Buffer,
		TimeAxis:          s.TimeAxis,
		CurrentFocusText:  s.Label.String(),
		CurrentFocusColor: color,
		TimerText:         fmt.Sprintf("Next verdict in: %.1f s", s.Remaining.Seconds()),
		LastVerdictText:   "Last verdict: " + last,
		ProgressPercent:   s.Progress * 100,
	}
}
