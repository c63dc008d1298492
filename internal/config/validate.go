package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Link.validate("link"); err != nil {
		return err
	}

	if strings.Contains(c.Bridge.Prefix, ":") {
		return fmt.Errorf("bridge.prefix must not contain ':', got %q", c.Bridge.Prefix)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (l *LinkConfig) validate(prefix string) error {
	if l.Address == "" {
		return errors.New(prefix + ".address is required")
	}
	u, err := url.Parse(l.Address)
	if err != nil {
		return fmt.Errorf("%s.address is invalid: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.address must use ws or wss, got %q", prefix, u.Scheme)
	}

	if l.MaxQueueSize < 1 {
		return fmt.Errorf("%s.max_queue_size must be >= 1", prefix)
	}
	if l.ReconnectAttempts() < 0 {
		return fmt.Errorf("%s.max_reconnect_attempts must be >= 0", prefix)
	}
	if l.BaseDelay <= 0 {
		return fmt.Errorf("%s.base_delay must be > 0", prefix)
	}
	if l.MaxDelay < l.BaseDelay {
		return fmt.Errorf("%s.max_delay (%s) cannot be less than base_delay (%s)", prefix, l.MaxDelay, l.BaseDelay)
	}
	if l.BackoffMultiplier < 1 {
		return fmt.Errorf("%s.backoff_multiplier must be >= 1, got %g", prefix, l.BackoffMultiplier)
	}
	if l.HealthCheckEnabled() {
		if l.HealthCheckInterval <= 0 {
			return fmt.Errorf("%s.health_check_interval must be > 0", prefix)
		}
		if l.PongTimeout <= 0 {
			return fmt.Errorf("%s.pong_timeout must be > 0", prefix)
		}
	}
	return nil
}
