// Package transport wraps one physical socket connection.
//
// A Dialer opens a Conn. A Conn exposes send/close and reports its
// lifecycle through Messages: the channel delivers inbound frames in
// arrival order and is closed exactly once when the connection ends, after
// which CloseEvent describes why.
package transport

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection closed")
)

// Close codes used by the link (RFC 6455 §7.4).
const (
	CloseNormal         = 1000
	CloseGoingAway      = 1001
	CloseAbnormal       = 1006
	CloseHealthCheck    = 4000
	ReasonHealthCheck   = "health-check failed"
	ReasonClientClosing = "client close"
)

// Message is one inbound frame.
type Message struct {
	Data       []byte    // Raw frame bytes
	ReceivedAt time.Time // Local timestamp when the read returned
}

// CloseEvent describes why a connection ended.
type CloseEvent struct {
	Code   int    // WebSocket close code, CloseAbnormal if none was received
	Reason string // Close reason or error text
	Err    error  // Underlying read error, nil on a clean close
	Local  bool   // True if Close was called on this side
}

// Conn is a single open connection.
type Conn interface {
	// Send writes one frame.
	Send(data []byte) error

	// Close closes the connection with the given close code and reason.
	// Safe to call more than once.
	Close(code int, reason string) error

	// Messages returns inbound frames. Closed when the connection ends.
	Messages() <-chan Message

	// CloseEvent returns the reason the connection ended. Only meaningful
	// after Messages is closed.
	CloseEvent() CloseEvent
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}
