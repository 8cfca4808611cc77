package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/connection"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/realtime-ai/focusstream/pkg/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAdvancer returns a fresh snapshot per call.
type countingAdvancer struct {
	calls atomic.Int64
	err   error
}

func (a *countingAdvancer) Advance() (*pipeline.Snapshot, error) {
	n := a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return &pipeline.Snapshot{
		Seq:       uint64(n),
		Buffer:    []float64{float64(n)},
		TimeAxis:  []float64{0},
		Label:     classifier.Focused,
		Verdict:   verdict.Verdict{Label: classifier.Focused, Confidence: 1},
		Remaining: time.Second,
	}, nil
}

type fakeSubscriber struct {
	id      string
	sendErr error
	panics  bool
	delay   time.Duration

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(ctx context.Context, data []byte) error {
	if f.panics {
		panic("subscriber exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, data)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestTickWithoutSessionsStillAdvances(t *testing.T) {
	adv := &countingAdvancer{}
	h := New(adv, time.Second)

	for i := 0; i < 5; i++ {
		h.Tick(context.Background())
	}
	assert.Equal(t, int64(5), adv.calls.Load())

	stats := h.Stats()
	assert.Equal(t, uint64(5), stats.Ticks)
	assert.Zero(t, stats.MessagesSent)
	assert.Zero(t, stats.Sessions)
}

func TestTickDeliversSamePayloadToAll(t *testing.T) {
	adv := &countingAdvancer{}
	h := New(adv, time.Second)

	subs := []*fakeSubscriber{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, s := range subs {
		h.Register(s)
	}
	h.Tick(context.Background())

	assert.Equal(t, int64(1), adv.calls.Load())
	for _, s := range subs {
		msgs := s.messages()
		require.Len(t, msgs, 1, s.id)
		assert.Equal(t, subs[0].messages()[0], msgs[0])

		var payload pipeline.Payload
		require.NoError(t, json.Unmarshal(msgs[0], &payload))
		assert.Equal(t, "FOCUSED", payload.CurrentFocusText)
		assert.Equal(t, []float64{1}, payload.EEGBuffer)
	}
	assert.Equal(t, uint64(3), h.Stats().MessagesSent)
}

func TestFailingSessionIsRemovedOthersReceive(t *testing.T) {
	h := New(&countingAdvancer{}, time.Second)

	good1 := &fakeSubscriber{id: "good1"}
	bad := &fakeSubscriber{id: "bad", sendErr: errors.New("broken pipe")}
	good2 := &fakeSubscriber{id: "good2"}
	for _, s := range []*fakeSubscriber{good1, bad, good2} {
		h.Register(s)
	}

	h.Tick(context.Background())
	assert.Len(t, good1.messages(), 1)
	assert.Len(t, good2.messages(), 1)
	assert.True(t, bad.isClosed())
	assert.Equal(t, 2, h.Sessions())

	h.Tick(context.Background())
	assert.Len(t, good1.messages(), 2)
	assert.Len(t, good2.messages(), 2)

	stats := h.Stats()
	assert.Equal(t, uint64(1), stats.SendFailures)
	assert.Equal(t, uint64(4), stats.MessagesSent)
}

func TestPanickingSessionIsContained(t *testing.T) {
	h := New(&countingAdvancer{}, time.Second)

	good := &fakeSubscriber{id: "good"}
	bad := &fakeSubscriber{id: "bad", panics: true}
	h.Register(good)
	h.Register(bad)

	assert.NotPanics(t, func() { h.Tick(context.Background()) })
	assert.Len(t, good.messages(), 1)
	assert.True(t, bad.isClosed())
	assert.Equal(t, 1, h.Sessions())
}

func TestSlowSessionBoundedBySendTimeout(t *testing.T) {
	h := New(&countingAdvancer{}, time.Second, WithSendTimeout(50*time.Millisecond))

	fast := &fakeSubscriber{id: "fast"}
	slow := &fakeSubscriber{id: "slow", delay: time.Minute}
	h.Register(fast)
	h.Register(slow)

	start := time.Now()
	h.Tick(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Len(t, fast.messages(), 1)
	assert.True(t, slow.isClosed())
	assert.Equal(t, 1, h.Sessions())
}

func TestAdvanceErrorSkipsFanOut(t *testing.T) {
	adv := &countingAdvancer{err: errors.New("bad chunk")}
	h := New(adv, time.Second)
	sub := &fakeSubscriber{id: "a"}
	h.Register(sub)

	h.Tick(context.Background())
	assert.Empty(t, sub.messages())
	assert.Equal(t, 1, h.Sessions())
	assert.Equal(t, uint64(1), h.Stats().AdvanceErrors)
}

func TestRegisterUnregister(t *testing.T) {
	h := New(&countingAdvancer{}, time.Second)
	sub := &fakeSubscriber{id: "a"}

	h.Register(sub)
	assert.Equal(t, 1, h.Sessions())
	assert.True(t, h.Unregister("a"))
	assert.False(t, h.Unregister("a"))
	assert.Zero(t, h.Sessions())
	assert.False(t, sub.isClosed())
}

func TestConnectionEventsUnregister(t *testing.T) {
	h := New(&countingAdvancer{}, time.Second)
	h.Register(&fakeSubscriber{id: "a"})
	h.Register(&fakeSubscriber{id: "b"})

	h.OnConnectionStateChange("a", connection.ConnectionStateConnected)
	assert.Equal(t, 2, h.Sessions())

	h.OnConnectionStateChange("a", connection.ConnectionStateClosed)
	h.OnError("b", errors.New("read"))
	assert.Equal(t, 1, h.Sessions())
}

func TestSnapshotObserver(t *testing.T) {
	var seen []uint64
	h := New(&countingAdvancer{}, time.Second, WithSnapshotObserver(func(s *pipeline.Snapshot) {
		seen = append(seen, s.Seq)
	}))
	h.Tick(context.Background())
	h.Tick(context.Background())
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	adv := &countingAdvancer{}
	h := New(adv, 10*time.Millisecond)
	sub := &fakeSubscriber{id: "a"}
	h.Register(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return adv.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, sub.isClosed())
	assert.Zero(t, h.Sessions())
	assert.GreaterOrEqual(t, len(sub.messages()), 3)
}
