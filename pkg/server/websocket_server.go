// Package server exposes the broadcast hub over HTTP: a WebSocket endpoint
// that turns each connection into a hub session, and a health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/realtime-ai/focusstream/pkg/connection"
	"github.com/realtime-ai/focusstream/pkg/hub"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/realtime-ai/focusstream/pkg/trace"
	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config holds the configuration for the WebSocket server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8765").
	Addr string

	// Path is the WebSocket endpoint path (e.g., "/ws").
	Path string

	// HealthPath serves hub stats as JSON.
	HealthPath string

	// MaxSessionsPerIP limits sessions per IP address.
	// 0 means no limit.
	MaxSessionsPerIP int

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int

	// Session timing for each connection.
	Session connection.WebSocketConfig
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8765",
		Path:            "/ws",
		HealthPath:      "/healthz",
		ReadBufferSize:  1024,
		WriteBufferSize: 16384,
		Session:         connection.DefaultWebSocketConfig(),
	}
}

// Server accepts WebSocket subscribers for a hub.
type Server struct {
	config *Config
	hub    *hub.Hub

	// IP-based session counting
	ipSessions   map[string]int
	ipSessionsMu sync.Mutex

	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader
	logger     *logrus.Entry
}

// New creates a server for h. A nil config uses DefaultConfig.
func New(config *Config, h *hub.Hub) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:     config,
		hub:        h,
		ipSessions: make(map[string]int),
		mux:        http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboards may be served from any origin
			},
		},
		logger: logging.For("server"),
	}

	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	if config.HealthPath != "" {
		s.mux.HandleFunc(config.HealthPath, s.handleHealth)
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens in the background. It returns an error if the listener
// fails immediately.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.mux,
	}

	s.logger.WithFields(logrus.Fields{
		"addr": s.config.Addr,
		"path": s.config.Path,
	}).Info("starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the HTTP server down gracefully. Sessions are closed by the hub.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)
	if !s.acquireIP(clientIP) {
		http.Error(w, "Too many sessions from this IP", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseIP(clientIP)
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	id := uuid.New().String()
	_, span := trace.InstrumentSessionOpened(context.Background(), id, conn.RemoteAddr().String())

	events := &sessionEvents{
		hub:  s.hub,
		span: span,
		onClose: func() {
			s.releaseIP(clientIP)
		},
	}
	session := connection.NewWebSocketSession(id, conn, s.config.Session, events)
	s.hub.Register(session)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Stats()); err != nil {
		s.logger.WithError(err).Warn("writing health response")
	}
}

func (s *Server) acquireIP(ip string) bool {
	s.ipSessionsMu.Lock()
	defer s.ipSessionsMu.Unlock()
	if s.config.MaxSessionsPerIP > 0 && s.ipSessions[ip] >= s.config.MaxSessionsPerIP {
		return false
	}
	s.ipSessions[ip]++
	return true
}

func (s *Server) releaseIP(ip string) {
	s.ipSessionsMu.Lock()
	defer s.ipSessionsMu.Unlock()
	s.ipSessions[ip]--
	if s.ipSessions[ip] <= 0 {
		delete(s.ipSessions, ip)
	}
}

// sessionEvents forwards lifecycle events to the hub and ends the session span.
type sessionEvents struct {
	hub     *hub.Hub
	span    oteltrace.Span
	onClose func()

	mu      sync.Mutex
	lastErr error
}

func (e *sessionEvents) OnConnectionStateChange(id string, state connection.ConnectionState) {
	e.hub.OnConnectionStateChange(id, state)
	if state != connection.ConnectionStateClosed {
		return
	}
	e.mu.Lock()
	err := e.lastErr
	e.mu.Unlock()
	trace.InstrumentSessionClosed(e.span, err)
	e.onClose()
}

func (e *sessionEvents) OnError(id string, err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	e.hub.OnError(id, err)
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	// Fall back to RemoteAddr, which may be a bracketed IPv6 host
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
