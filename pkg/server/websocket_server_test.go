package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/eeg"
	"github.com/realtime-ai/focusstream/pkg/hub"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constantModel classifier.Label

func (m constantModel) Classify([]float64) classifier.Label { return classifier.Label(m) }

func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	opts := pipeline.DefaultOptions()
	opts.WindowSize = 2

	samples := make([]float64, 2000)
	for i := range samples {
		samples[i] = float64(i%50) / 50
	}
	src, err := eeg.NewSource(samples, opts.ChunkLen)
	require.NoError(t, err)
	p, err := pipeline.New(src, constantModel(classifier.Focused), opts)
	require.NoError(t, err)
	return hub.New(p, opts.ChunkDuration())
}

func startTestServer(t *testing.T, cfg *Config, h *hub.Hub) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(New(cfg, h).Handler())
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketEndToEnd(t *testing.T) {
	h := newTestHub(t)
	_, base := startTestServer(t, nil, h)

	c1 := dial(t, base+"/ws")
	c2 := dial(t, base+"/ws")
	require.Eventually(t, func() bool { return h.Sessions() == 2 }, 2*time.Second, 10*time.Millisecond)

	h.Tick(context.Background())
	h.Tick(context.Background())

	for _, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))

		var first, second pipeline.Payload
		require.NoError(t, c.ReadJSON(&first))
		require.NoError(t, c.ReadJSON(&second))

		assert.Len(t, first.EEGBuffer, 1000)
		assert.Len(t, first.TimeAxis, 1000)
		assert.Equal(t, "FOCUSED", first.CurrentFocusText)
		assert.Equal(t, "green", first.CurrentFocusColor)
		assert.Equal(t, "Last verdict: No verdict yet", first.LastVerdictText)
		assert.Equal(t, "Last verdict: Focused (Confidence: 1.00)", second.LastVerdictText)
		assert.Equal(t, "Next verdict in: 0.8 s", second.TimerText)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h := newTestHub(t)
	_, base := startTestServer(t, nil, h)

	c := dial(t, base+"/ws")
	require.Eventually(t, func() bool { return h.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.Close()
	require.Eventually(t, func() bool { return h.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)

	// The loop keeps going without subscribers
	h.Tick(context.Background())
	assert.Equal(t, uint64(1), h.Stats().Ticks)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHub(t)
	srv, base := startTestServer(t, nil, h)

	dial(t, base+"/ws")
	require.Eventually(t, func() bool { return h.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.Tick(context.Background())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats hub.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, uint64(1), stats.Ticks)
	assert.Equal(t, uint64(1), stats.MessagesSent)
}

func TestMaxSessionsPerIP(t *testing.T) {
	h := newTestHub(t)
	cfg := DefaultConfig()
	cfg.MaxSessionsPerIP = 1
	_, base := startTestServer(t, cfg, h)

	first := dial(t, base+"/ws")
	require.Eventually(t, func() bool { return h.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// The slot frees up once the first client leaves
	first.Close()
	require.Eventually(t, func() bool { return h.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", getClientIP(r))

	r.RemoteAddr = "[2001:db8::1]:5555"
	assert.Equal(t, "2001:db8::1", getClientIP(r))
	r.RemoteAddr = "[2001:db8::2]:6666"
	assert.Equal(t, "2001:db8::2", getClientIP(r))

	r.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", getClientIP(r))

	r.Header.Set("X-Real-IP", "192.168.1.2")
	assert.Equal(t, "192.168.1.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(r))
}
