// Package hub drives the shared pipeline on a fixed period and fans each
// resulting payload out to every connected subscriber.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/realtime-ai/focusstream/pkg/connection"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/realtime-ai/focusstream/pkg/trace"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// Advancer produces one snapshot per call. *pipeline.Pipeline implements it.
type Advancer interface {
	Advance() (*pipeline.Snapshot, error)
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Sessions      int     `json:"sessions"`
	Ticks         uint64  `json:"ticks"`
	MessagesSent  uint64  `json:"messages_sent"`
	SendFailures  uint64  `json:"send_failures"`
	AdvanceErrors uint64  `json:"advance_errors"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendTimeout bounds the whole fan-out of one tick. Sessions still apply
// their own write deadline.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) { h.sendTimeout = d }
}

// WithSnapshotObserver registers a callback invoked after every successful
// advance, before fan-out.
func WithSnapshotObserver(fn func(*pipeline.Snapshot)) Option {
	return func(h *Hub) { h.observer = fn }
}

// Hub owns the subscriber set and the pipeline. The pipeline is advanced
// only from Tick, which Run calls from a single goroutine.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]connection.Subscriber

	pipeline    Advancer
	interval    time.Duration
	sendTimeout time.Duration
	observer    func(*pipeline.Snapshot)

	ticks         atomic.Uint64
	sent          atomic.Uint64
	failures      atomic.Uint64
	advanceErrors atomic.Uint64
	started       time.Time

	logger *logrus.Entry
}

var _ connection.ConnectionEventHandler = (*Hub)(nil)

// New creates a hub that advances p every interval.
func New(p Advancer, interval time.Duration, opts ...Option) *Hub {
	h := &Hub{
		sessions: make(map[string]connection.Subscriber),
		pipeline: p,
		interval: interval,
		started:  time.Now(),
		logger:   logging.For("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a subscriber. A subscriber with the same ID is replaced.
func (h *Hub) Register(sub connection.Subscriber) {
	h.mu.Lock()
	h.sessions[sub.ID()] = sub
	n := len(h.sessions)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"session_id": sub.ID(),
		"sessions":   n,
	}).Info("session registered")
}

// Unregister removes a subscriber and reports whether it was present. It
// does not close the subscriber.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	n := len(h.sessions)
	h.mu.Unlock()

	if ok {
		h.logger.WithFields(logrus.Fields{
			"session_id": id,
			"sessions":   n,
		}).Info("session unregistered")
	}
	return ok
}

// Sessions returns the number of registered subscribers.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// OnConnectionStateChange unregisters sessions that close on their own.
func (h *Hub) OnConnectionStateChange(id string, state connection.ConnectionState) {
	if state == connection.ConnectionStateClosed || state == connection.ConnectionStateFailed {
		h.Unregister(id)
	}
}

// OnError logs transport errors; the failing send is handled by Tick.
func (h *Hub) OnError(id string, err error) {
	h.logger.WithField("session_id", id).WithError(err).Debug("session error")
}

// Run ticks until ctx is cancelled, then closes all subscribers.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.WithField("interval", h.interval).Info("broadcast loop started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("broadcast loop stopped")
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick advances the pipeline once and delivers the payload to every
// subscriber registered at the start of the tick. Subscribers whose send
// fails or panics are unregistered and closed. Tick never fails; an advance
// error skips the fan-out.
func (h *Hub) Tick(ctx context.Context) {
	h.ticks.Add(1)
	subs := h.snapshot()

	ctx, span := trace.InstrumentTick(ctx, len(subs))
	defer span.End()

	snap, err := h.pipeline.Advance()
	if err != nil {
		h.advanceErrors.Add(1)
		trace.RecordError(span, err)
		h.logger.WithError(err).Error("pipeline advance failed, skipping tick")
		return
	}
	if h.observer != nil {
		h.observer(snap)
	}

	data, err := json.Marshal(snap.Payload())
	if err != nil {
		trace.RecordError(span, err)
		h.logger.WithError(err).Error("encoding payload failed, skipping tick")
		return
	}

	span.SetAttributes(trace.TickAttrs(snap.Seq, len(subs), len(data))...)
	span.SetAttributes(trace.VerdictAttrs(snap.Label.String(), snap.NewVerdict,
		snap.Verdict.Label.String(), snap.Verdict.Confidence)...)
	if snap.NewVerdict {
		h.logger.WithFields(logrus.Fields{
			"seq":        snap.Seq,
			"verdict":    snap.Verdict.Label.String(),
			"confidence": snap.Verdict.Confidence,
			"sessions":   len(subs),
			"trace_id":   trace.TraceID(ctx),
		}).Info("verdict")
	}

	if len(subs) == 0 {
		return
	}

	sendCtx := ctx
	if h.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, h.sendTimeout)
		defer cancel()
	}

	var (
		mu     sync.Mutex
		errs   error
		failed []connection.Subscriber
		wg     conc.WaitGroup
	)
	for _, sub := range subs {
		wg.Go(func() {
			var sendErr error
			if r := panics.Try(func() { sendErr = sub.Send(sendCtx, data) }); r != nil {
				sendErr = r.AsError()
			}
			if sendErr == nil {
				h.sent.Add(1)
				return
			}
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", sub.ID(), sendErr))
			failed = append(failed, sub)
			mu.Unlock()
		})
	}
	wg.Wait()

	if len(failed) == 0 {
		return
	}

	h.failures.Add(uint64(len(failed)))
	span.SetAttributes(attribute.Int(trace.AttrSendFailures, len(failed)))
	trace.RecordError(span, errs)
	h.logger.WithFields(logrus.Fields{
		"seq":    snap.Seq,
		"failed": len(failed),
	}).WithError(errs).Warn("dropping failed sessions")

	for _, sub := range failed {
		h.Unregister(sub.ID())
		if err := sub.Close(); err != nil {
			h.logger.WithField("session_id", sub.ID()).WithError(err).Debug("close after failed send")
		}
	}
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Sessions:      h.Sessions(),
		Ticks:         h.ticks.Load(),
		MessagesSent:  h.sent.Load(),
		SendFailures:  h.failures.Load(),
		AdvanceErrors: h.advanceErrors.Load(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}
}

func (h *Hub) snapshot() []connection.Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]connection.Subscriber, 0, len(h.sessions))
	for _, s := range h.sessions {
		subs = append(subs, s)
	}
	return subs
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]connection.Subscriber, 0, len(h.sessions))
	for id, s := range h.sessions {
		subs = append(subs, s)
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
