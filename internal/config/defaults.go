package config

import (
	"time"

	"github.com/rickgao/livelink/internal/bridge"
)

// Default values for optional configuration fields.
const (
	DefaultMaxQueueSize         = 100
	DefaultMaxReconnectAttempts = 10
	DefaultBaseDelay            = 1 * time.Second
	DefaultMaxDelay             = 30 * time.Second
	DefaultBackoffMultiplier    = 1.5
	DefaultHealthCheckInterval  = 30 * time.Second
	DefaultPongTimeout          = 10 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBridgePrefix         = bridge.DefaultPrefix
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// ApplyDefaults fills unset fields. Zero values count as unset.
func (c *Config) ApplyDefaults() {
	// Link defaults
	if c.Link.MaxQueueSize == 0 {
		c.Link.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Link.MaxReconnectAttempts == nil {
		n := DefaultMaxReconnectAttempts
		c.Link.MaxReconnectAttempts = &n
	}
	if c.Link.BaseDelay == 0 {
		c.Link.BaseDelay = DefaultBaseDelay
	}
	if c.Link.MaxDelay == 0 {
		c.Link.MaxDelay = DefaultMaxDelay
	}
	if c.Link.BackoffMultiplier == 0 {
		c.Link.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.Link.EnableHealthCheck == nil {
		enabled := true
		c.Link.EnableHealthCheck = &enabled
	}
	if c.Link.HealthCheckInterval == 0 {
		c.Link.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.Link.PongTimeout == 0 {
		c.Link.PongTimeout = DefaultPongTimeout
	}
	if c.Link.HandshakeTimeout == 0 {
		c.Link.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Link.WriteTimeout == 0 {
		c.Link.WriteTimeout = DefaultWriteTimeout
	}

	// Bridge defaults
	if c.Bridge.Prefix == "" {
		c.Bridge.Prefix = DefaultBridgePrefix
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
