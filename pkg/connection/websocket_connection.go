package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWSWriteWait  = 10 * time.Second
	DefaultWSPongWait   = 60 * time.Second
	DefaultWSPingPeriod = 54 * time.Second // Must be less than pongWait
)

// WebSocketConfig holds configuration for WebSocket sessions.
type WebSocketConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:  DefaultWSWriteWait,
		PongWait:   DefaultWSPongWait,
		PingPeriod: DefaultWSPingPeriod,
	}
}

// WebSocketSession is a Subscriber backed by a gorilla WebSocket. A read pump
// detects peer disconnects (client messages are discarded) and a ping pump
// keeps idle connections alive. Payloads are written synchronously by Send.
type WebSocketSession struct {
	id     string
	conn   *websocket.Conn
	logger *logrus.Entry

	handler ConnectionEventHandler

	// Timing parameters
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	// gorilla allows one concurrent writer of data frames
	writeMu sync.Mutex
	sent    atomic.Uint64

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

var _ Subscriber = (*WebSocketSession)(nil)

// NewWebSocketSession wraps an upgraded connection and starts its pumps.
// handler may be nil.
func NewWebSocketSession(id string, conn *websocket.Conn, cfg WebSocketConfig, handler ConnectionEventHandler) *WebSocketSession {
	if handler == nil {
		handler = &NoOpConnectionEventHandler{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	ws := &WebSocketSession{
		id:         id,
		conn:       conn,
		handler:    handler,
		writeWait:  cfg.WriteWait,
		pongWait:   cfg.PongWait,
		pingPeriod: cfg.PingPeriod,
		ctx:        ctx,
		cancel:     cancel,
		logger: logging.For("session").WithFields(logrus.Fields{
			"session_id": id,
			"remote":     conn.RemoteAddr().String(),
		}),
	}

	ws.start()

	return ws
}

// ID returns the session identifier.
func (w *WebSocketSession) ID() string {
	return w.id
}

// RemoteAddr returns the peer address.
func (w *WebSocketSession) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

// Done is closed once the session has been closed.
func (w *WebSocketSession) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Sent returns the number of payloads written.
func (w *WebSocketSession) Sent() uint64 {
	return w.sent.Load()
}

func (w *WebSocketSession) start() {
	w.handler.OnConnectionStateChange(w.id, ConnectionStateConnected)

	w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
		return nil
	})

	w.wg.Add(2)
	go w.readPump()
	go w.pingPump()
}

func (w *WebSocketSession) readPump() {
	defer w.wg.Done()
	defer w.Close()

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if w.closed.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				w.logger.WithError(err).Warn("read error")
				w.handler.OnError(w.id, err)
			} else {
				w.logger.Debug("peer disconnected")
			}
			return
		}
		// Subscribers are receive-only; client frames are discarded
	}
}

func (w *WebSocketSession) pingPump() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait)); err != nil {
				w.logger.WithError(err).Debug("ping error")
				w.Close()
				return
			}
		}
	}
}

// Send writes one text frame, bounded by the write wait and ctx's deadline.
func (w *WebSocketSession) Send(ctx context.Context, data []byte) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(w.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	w.conn.SetWriteDeadline(deadline)

	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if w.closed.Load() {
			return ErrClosed
		}
		w.handler.OnError(w.id, err)
		return fmt.Errorf("session %s: write: %w", w.id, err)
	}
	w.sent.Add(1)
	return nil
}

// Close sends a close frame, tears down the socket and stops the pumps.
func (w *WebSocketSession) Close() error {
	var err error
	w.once.Do(func() {
		w.closed.Store(true)
		w.cancel()

		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.conn.Close()

		w.logger.WithField("sent", w.sent.Load()).Info("session closed")
		w.handler.OnConnectionStateChange(w.id, ConnectionStateClosed)
	})
	return err
}

// Wait blocks until both pumps have exited.
func (w *WebSocketSession) Wait() {
	w.wg.Wait()
}
