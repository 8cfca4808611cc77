// Package connection provides the subscriber side of the broadcast: anything
// that can receive a serialized snapshot once per tick.
package connection

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send on a subscriber that has been closed.
var ErrClosed = errors.New("connection: closed")

// ConnectionState represents the state of a connection.
type ConnectionState int

const (
	// ConnectionStateNew - Initial state, connection not yet started
	ConnectionStateNew ConnectionState = iota
	// ConnectionStateConnected - Connection is established and ready
	ConnectionStateConnected
	// ConnectionStateFailed - Connection failed permanently
	ConnectionStateFailed
	// ConnectionStateClosed - Connection closed by peer or server
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionEventHandler handles connection lifecycle events.
type ConnectionEventHandler interface {
	// OnConnectionStateChange is called when the connection state changes.
	OnConnectionStateChange(id string, state ConnectionState)

	// OnError is called when a read or write fails.
	OnError(id string, err error)
}

// NoOpConnectionEventHandler is a no-op implementation for convenience.
type NoOpConnectionEventHandler struct{}

func (h *NoOpConnectionEventHandler) OnConnectionStateChange(id string, state ConnectionState) {}
func (h *NoOpConnectionEventHandler) OnError(id string, err error)                             {}

// Subscriber receives broadcast payloads.
type Subscriber interface {
	// ID returns the unique identifier for this subscriber.
	ID() string

	// Send delivers one message. It blocks until the message is written or
	// fails, and must be safe to call concurrently with Close.
	Send(ctx context.Context, data []byte) error

	// Close releases the subscriber. It is idempotent.
	Close() error
}
