package connection

import (
	"errors"
	"time"

	"github.com/rickgao/livelink/internal/backoff"
	"github.com/rickgao/livelink/internal/health"
	"github.com/rickgao/livelink/internal/queue"
)

// Errors
var (
	// ErrQueued is returned by Send when the payload was buffered instead
	// of written. It is not a failure; the payload goes out on reconnect.
	ErrQueued = errors.New("payload queued until link is open")
)

// State is the lifecycle state of the link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view returned by Manager.State.
type Snapshot struct {
	State   State
	Attempt int // Reconnect attempts since the last successful connect
	Queued  int // Payloads waiting for the link
}

// Stats are cumulative counters for metrics.
type Stats struct {
	MessagesReceived int64 // Inbound frames published on the message channel
	MalformedDropped int64 // Inbound frames that failed to parse
	PingsAnswered    int64 // Server pings answered with a pong
	Queue            queue.Stats
}

// ConnectedEvent is published on events.ChannelConnected.
type ConnectedEvent struct {
	Address string
	Flushed int // Queued payloads handed to the new link
}

// DisconnectedEvent is published on events.ChannelDisconnected.
type DisconnectedEvent struct {
	Code        int
	Reason      string
	Intentional bool // Close was called
	Exhausted   bool // Terminal: no further reconnects will be attempted
}

// ReconnectingEvent is published on events.ChannelReconnecting.
type ReconnectingEvent struct {
	Attempt int           // 1-based attempt number
	Delay   time.Duration // Wait before the attempt
}

// ErrorEvent is published on events.ChannelError.
type ErrorEvent struct {
	Err error
}

// StateEvent is published on events.ChannelState for every transition.
type StateEvent struct {
	Old State
	New State
}

// Config configures a Manager. It is not modified after NewManager.
//
// Zero durations, a zero queue size and a multiplier below 1 are replaced
// with the DefaultConfig values. MaxReconnectAttempts is used as given, so
// zero disables reconnects.
type Config struct {
	Address              string        // WebSocket URL
	MaxQueueSize         int           // Outbound buffer capacity
	MaxReconnectAttempts int           // Retries before giving up
	BaseDelay            time.Duration // First reconnect delay
	MaxDelay             time.Duration // Reconnect delay cap
	BackoffMultiplier    float64       // Delay growth per attempt
	EnableHealthCheck    bool          // Send ping probes while connected
	HealthCheckInterval  time.Duration // Time between probes
	PongTimeout          time.Duration // Grace period for a pong
	Debug                bool          // Log every frame at debug level
	HandshakeTimeout     time.Duration // Dial handshake deadline
	WriteTimeout         time.Duration // Write deadline for sends
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:         queue.DefaultCapacity,
		MaxReconnectAttempts: backoff.DefaultMaxAttempts,
		BaseDelay:            backoff.DefaultBaseDelay,
		MaxDelay:             backoff.DefaultMaxDelay,
		BackoffMultiplier:    backoff.DefaultMultiplier,
		EnableHealthCheck:    true,
		HealthCheckInterval:  health.DefaultInterval,
		PongTimeout:          health.DefaultPongTimeout,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

func (c Config) backoffPolicy() backoff.Policy {
	return backoff.Policy{
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Multiplier:  c.BackoffMultiplier,
		MaxAttempts: c.MaxReconnectAttempts,
	}
}

func (c Config) healthConfig() health.Config {
	return health.Config{
		Interval:    c.HealthCheckInterval,
		PongTimeout: c.PongTimeout,
	}
}
