package config

import (
	"time"

	"github.com/rickgao/livelink/internal/connection"
)

// Config is the root configuration for a linkwatch instance.
type Config struct {
	Link    LinkConfig    `yaml:"link"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// LinkConfig holds the connection manager settings.
type LinkConfig struct {
	Address              string        `yaml:"address"` // ws:// or wss:// endpoint
	MaxQueueSize         int           `yaml:"max_queue_size"`
	MaxReconnectAttempts *int          `yaml:"max_reconnect_attempts"` // nil = default, 0 disables reconnects
	BaseDelay            time.Duration `yaml:"base_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"`
	EnableHealthCheck    *bool         `yaml:"enable_health_check"` // nil = default (true)
	HealthCheckInterval  time.Duration `yaml:"health_check_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	Debug                bool          `yaml:"debug"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// BridgeConfig holds external signal bridge settings.
type BridgeConfig struct {
	Prefix string `yaml:"prefix"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// HealthCheckEnabled reports the effective health check setting.
func (l LinkConfig) HealthCheckEnabled() bool {
	return l.EnableHealthCheck == nil || *l.EnableHealthCheck
}

// ReconnectAttempts reports the effective reconnect limit.
func (l LinkConfig) ReconnectAttempts() int {
	if l.MaxReconnectAttempts == nil {
		return DefaultMaxReconnectAttempts
	}
	return *l.MaxReconnectAttempts
}

// Connection converts the link settings to a connection.Config.
func (l LinkConfig) Connection() connection.Config {
	return connection.Config{
		Address:              l.Address,
		MaxQueueSize:         l.MaxQueueSize,
		MaxReconnectAttempts: l.ReconnectAttempts(),
		BaseDelay:            l.BaseDelay,
		MaxDelay:             l.MaxDelay,
		BackoffMultiplier:    l.BackoffMultiplier,
		EnableHealthCheck:    l.HealthCheckEnabled(),
		HealthCheckInterval:  l.HealthCheckInterval,
		PongTimeout:          l.PongTimeout,
		Debug:                l.Debug,
		HandshakeTimeout:     l.HandshakeTimeout,
		WriteTimeout:         l.WriteTimeout,
	}
}
