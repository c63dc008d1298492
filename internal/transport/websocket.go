package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures WebSocket connections.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Inbound message channel buffer size
	Header           http.Header   // Extra handshake headers
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// WebSocketDialer dials WebSocket connections with gorilla/websocket.
type WebSocketDialer struct {
	cfg    WebSocketConfig
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer.
func NewWebSocketDialer(cfg WebSocketConfig, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultWebSocketConfig().BufferSize
	}
	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, address string) (Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	for k, vs := range d.cfg.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	ws, _, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	c := &wsConn{
		cfg:      d.cfg,
		logger:   d.logger,
		ws:       ws,
		messages: make(chan Message, d.cfg.BufferSize),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	d.logger.Debug("websocket connected", "url", address)
	return c, nil
}

// wsConn implements Conn.
type wsConn struct {
	cfg    WebSocketConfig
	logger *slog.Logger
	ws     *websocket.Conn

	messages chan Message
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	closeCode int
	closeMsg  string
	event     CloseEvent
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeMsg = reason
	c.mu.Unlock()

	// Signal the read loop to stop
	close(c.done)

	c.writeMu.Lock()
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("failed to send close frame", "error", err)
	}

	return c.ws.Close()
}

func (c *wsConn) Messages() <-chan Message {
	return c.messages
}

func (c *wsConn) CloseEvent() CloseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event
}

// readLoop reads frames until the connection ends, then records the
// CloseEvent and closes the messages channel.
func (c *wsConn) readLoop() {
	var ev CloseEvent
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.event = ev
		c.mu.Unlock()
		close(c.messages)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			ev = c.closeEventFor(err)
			return
		}

		select {
		case c.messages <- Message{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			ev = c.closeEventFor(ErrClosed)
			return
		}
	}
}

// closeEventFor classifies a read error.
func (c *wsConn) closeEventFor(err error) CloseEvent {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return CloseEvent{Code: c.closeCode, Reason: c.closeMsg, Local: true}
	default:
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		ev := CloseEvent{Code: ce.Code, Reason: ce.Text}
		if ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway {
			ev.Err = err
		}
		return ev
	}

	return CloseEvent{Code: CloseAbnormal, Reason: err.Error(), Err: err}
}
