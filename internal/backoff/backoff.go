// Package backoff computes reconnect delays for the link.
//
// Delays grow geometrically from a base and are capped:
//
//	NextDelay(n) = min(Base * Multiplier^n, Max)
package backoff

import (
	"math"
	"time"
)

// Defaults match the link's default configuration.
const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMultiplier  = 1.5
	DefaultMaxAttempts = 10
)

// Policy configures a Scheduler.
type Policy struct {
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound for any delay
	Multiplier  float64       // Growth factor per attempt (>= 1)
	MaxAttempts int           // Retries permitted before giving up
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Scheduler decides whether and when to retry. It is stateless; the
// attempt counter belongs to the caller.
type Scheduler struct {
	policy Policy
}

// NewScheduler creates a Scheduler. A multiplier below 1 is treated as 1
// so delays never shrink.
func NewScheduler(p Policy) *Scheduler {
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return &Scheduler{policy: p}
}

// Policy returns the effective policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// NextDelay returns the delay before retry number attempt (0-based).
func (s *Scheduler) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(s.policy.BaseDelay) * math.Pow(s.policy.Multiplier, float64(attempt))
	if math.IsInf(d, 0) || d >= float64(s.policy.MaxDelay) {
		return s.policy.MaxDelay
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another retry is permitted after attempt
// retries have already been scheduled.
func (s *Scheduler) ShouldRetry(attempt int) bool {
	return attempt < s.policy.MaxAttempts
}
