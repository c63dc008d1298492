// Package health detects silently dead links with active ping/pong probes.
//
// While started, the Monitor sends a ping every Interval unless a probe is
// already outstanding. A matching pong clears the probe. If no pong arrives
// within PongTimeout the Expire hook fires once with ErrTimeout and the
// monitor stops itself; the owner is expected to force-close the transport.
package health

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/livelink/internal/clock"
	"github.com/rickgao/livelink/internal/protocol"
)

// ErrTimeout is reported when a probe is not answered in time.
var ErrTimeout = errors.New("health check failed: pong timeout")

// Defaults for Config.
const (
	DefaultInterval    = 30 * time.Second
	DefaultPongTimeout = 10 * time.Second
)

// Config configures a Monitor.
type Config struct {
	Interval    time.Duration // Time between probes
	PongTimeout time.Duration // Grace period for a pong
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		PongTimeout: DefaultPongTimeout,
	}
}

// Hooks connect a Monitor to its transport.
type Hooks struct {
	// SendPing writes a probe. Errors are logged; the probe stays
	// outstanding and will time out.
	SendPing func(protocol.Ping) error
	// Expire is called once per epoch when a probe times out.
	Expire func(err error)
}

// Probe is the single outstanding liveness probe.
type Probe struct {
	ID     string
	SentAt time.Time
}

// Monitor issues liveness probes. Safe for concurrent use; hooks are
// always called without the monitor's lock held.
type Monitor struct {
	cfg    Config
	timer  clock.Timer
	logger *slog.Logger

	// Overridable for tests.
	newID func() string
	now   func() time.Time

	mu          sync.Mutex
	running     bool
	epoch       uint64
	hooks       Hooks
	ticker      clock.Handle
	timeout     clock.Handle
	outstanding *Probe
}

// NewMonitor creates a stopped Monitor.
func NewMonitor(cfg Config, timer clock.Timer, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = DefaultPongTimeout
	}
	if timer == nil {
		timer = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		cfg:    cfg,
		timer:  timer,
		logger: logger.With("component", "health"),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Start begins probing for a new connection epoch with a clean probe
// state. Calling Start on a running monitor restarts it.
func (m *Monitor) Start(hooks Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.running = true
	m.epoch++
	m.hooks = hooks
	m.armTickLocked(m.epoch)

	m.logger.Debug("health monitor started",
		"interval", m.cfg.Interval,
		"pong_timeout", m.cfg.PongTimeout,
	)
}

// Stop cancels the probe interval and any pending pong timeout.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Debug("health monitor stopped")
	}
	m.stopLocked()
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Outstanding returns the current unanswered probe, if any.
func (m *Monitor) Outstanding() (Probe, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outstanding == nil {
		return Probe{}, false
	}
	return *m.outstanding, true
}

// HandlePong clears the outstanding probe if id matches it.
// Returns true when a probe was cleared.
func (m *Monitor) HandlePong(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.outstanding == nil || m.outstanding.ID != id {
		m.logger.Debug("ignoring unmatched pong", "id", id)
		return false
	}

	clock.Cancel(m.timeout)
	m.timeout = nil
	m.outstanding = nil
	return true
}

// stopLocked must be called with lock held.
func (m *Monitor) stopLocked() {
	clock.Cancel(m.ticker)
	clock.Cancel(m.timeout)
	m.ticker = nil
	m.timeout = nil
	m.outstanding = nil
	m.running = false
}

// armTickLocked must be called with lock held.
func (m *Monitor) armTickLocked(epoch uint64) {
	m.ticker = m.timer.Schedule(m.cfg.Interval, func() { m.tick(epoch) })
}

func (m *Monitor) tick(epoch uint64) {
	m.mu.Lock()
	if !m.running || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.armTickLocked(epoch)

	if m.outstanding != nil {
		m.mu.Unlock()
		m.logger.Debug("probe still outstanding, skipping ping")
		return
	}

	probe := &Probe{ID: m.newID(), SentAt: m.now()}
	m.outstanding = probe
	id := probe.ID
	m.timeout = m.timer.Schedule(m.cfg.PongTimeout, func() { m.expire(epoch, id) })
	send := m.hooks.SendPing
	m.mu.Unlock()

	if send == nil {
		return
	}
	if err := send(protocol.NewPing(probe.ID, probe.SentAt)); err != nil {
		m.logger.Warn("failed to send ping", "id", probe.ID, "error", err)
	}
}

// expire handles a pong timeout. Repeated or stale invocations are no-ops.
func (m *Monitor) expire(epoch uint64, id string) {
	m.mu.Lock()
	if !m.running || m.epoch != epoch || m.outstanding == nil || m.outstanding.ID != id {
		m.mu.Unlock()
		return
	}
	sentAt := m.outstanding.SentAt
	m.timeout = nil
	m.stopLocked()
	hook := m.hooks.Expire
	m.mu.Unlock()

	m.logger.Warn("pong not received, link considered dead",
		"id", id,
		"sent_at", sentAt,
		"timeout", m.cfg.PongTimeout,
	)
	if hook != nil {
		hook(fmt.Errorf("probe %s: %w", id, ErrTimeout))
	}
}
