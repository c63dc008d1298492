package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/livelink/internal/backoff"
	"github.com/rickgao/livelink/internal/clock"
	"github.com/rickgao/livelink/internal/events"
	"github.com/rickgao/livelink/internal/health"
	"github.com/rickgao/livelink/internal/protocol"
	"github.com/rickgao/livelink/internal/queue"
	"github.com/rickgao/livelink/internal/transport"
)

const reasonWriteFailed = "write failed"

// Deps are the Manager's collaborators. Zero values get production
// defaults.
type Deps struct {
	Dialer     transport.Dialer   // Default: gorilla WebSocket dialer
	Timer      clock.Timer        // Default: clock.Real
	Dispatcher *events.Dispatcher // Default: a private dispatcher
	Logger     *slog.Logger       // Default: slog.Default()
}

// pending is an event waiting in the outbox.
type pending struct {
	channel string
	data    any
}

// Manager maintains one logical link to a remote endpoint.
//
// All mutable state is guarded by mu. Dials and reads run on their own
// goroutines and tag their results with the epoch they were started in;
// results from an older epoch are ignored. Writes go through a per
// connection writer so no caller waits on the network.
//
// Events are appended to the outbox under mu in the order they happen and
// delivered by one goroutine at a time, outside the lock.
type Manager struct {
	cfg        Config
	dialer     transport.Dialer
	timer      clock.Timer
	dispatcher *events.Dispatcher
	logger     *slog.Logger
	sched      *backoff.Scheduler
	queue      *queue.Queue
	monitor    *health.Monitor // nil when health checks are disabled

	mu          sync.Mutex
	state       State
	attempt     int
	intentional bool
	exhausted   bool
	conn        transport.Conn
	writer      *writer // writer of conn, or of the last conn until the next connect
	epoch       uint64
	dialCancel  context.CancelFunc
	retry       clock.Handle
	retrySeq    uint64
	outbox      []pending
	delivering  bool

	received  atomic.Int64
	malformed atomic.Int64
	pings     atomic.Int64
}

// NewManager creates a disconnected Manager. Call Connect to start.
func NewManager(cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "connection")

	cfg = cfg.withDefaults()

	dialer := deps.Dialer
	if dialer == nil {
		dialer = transport.NewWebSocketDialer(transport.WebSocketConfig{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		}, logger)
	}
	timer := deps.Timer
	if timer == nil {
		timer = clock.Real{}
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewDispatcher(logger)
	}

	m := &Manager{
		cfg:        cfg,
		dialer:     dialer,
		timer:      timer,
		dispatcher: dispatcher,
		logger:     logger,
		sched:      backoff.NewScheduler(cfg.backoffPolicy()),
		queue:      queue.New(cfg.MaxQueueSize),
		state:      Disconnected,
	}
	if cfg.EnableHealthCheck {
		m.monitor = health.NewMonitor(cfg.healthConfig(), timer, logger)
	}
	return m
}

// Subscribe registers fn on one of the events channels.
func (m *Manager) Subscribe(channel string, fn events.Handler) *events.Subscription {
	return m.dispatcher.Subscribe(channel, fn)
}

// Dispatcher returns the dispatcher the Manager publishes on.
func (m *Manager) Dispatcher() *events.Dispatcher {
	return m.dispatcher
}

// Connect starts connecting. It returns immediately; the outcome is
// published on the connected or disconnected channel. A no-op while
// connecting or connected. Each call resets the attempt counter and
// clears a previous Close.
func (m *Manager) Connect() {
	m.mu.Lock()
	m.connectLocked(true)
	m.mu.Unlock()
	m.deliver()
}

// Send hands payload to the link's writer if the link is open, otherwise
// queues it and returns ErrQueued. It never waits on the network. Only a
// payload that cannot be encoded returns another error.
//
// A payload accepted while open that later fails to write stays queued
// and goes out after the link reconnects.
func (m *Manager) Send(payload any) error {
	data, err := protocol.Encode(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dropped, evicted := m.queue.Enqueue(data); evicted {
		m.logger.Debug("queue full, dropped oldest payload",
			"seq", dropped.Seq,
			"capacity", m.queue.Cap(),
		)
	}
	if m.state == Connected && m.conn != nil {
		m.writer.notify()
		return nil
	}
	return ErrQueued
}

// Close shuts the link down for good: no reconnects are attempted until
// Connect is called again. Queued payloads are discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	m.intentional = true
	m.cancelRetryLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.monitor != nil {
		m.monitor.Stop()
	}
	if m.writer != nil {
		m.writer.stop()
	}

	conn := m.conn
	m.conn = nil
	m.epoch++

	if n := m.queue.Clear(); n > 0 {
		m.logger.Debug("discarded queued payloads", "count", n)
	}

	if m.state != Disconnected {
		m.setStateLocked(Closing)
		m.setStateLocked(Disconnected)
	}
	if conn != nil {
		m.emitLocked(events.ChannelDisconnected, DisconnectedEvent{
			Code:        transport.CloseNormal,
			Reason:      transport.ReasonClientClosing,
			Intentional: true,
		})
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(transport.CloseNormal, transport.ReasonClientClosing); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
		m.logger.Info("link closed", "address", m.cfg.Address)
	}
	m.deliver()
}

// State returns a snapshot of the link. It has no side effects.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:   m.state,
		Attempt: m.attempt,
		Queued:  m.queue.Len(),
	}
}

// Stats returns cumulative counters.
func (m *Manager) Stats() Stats {
	return Stats{
		MessagesReceived: m.received.Load(),
		MalformedDropped: m.malformed.Load(),
		PingsAnswered:    m.pings.Load(),
		Queue:            m.queue.Stats(),
	}
}

// connectLocked starts a dial. manual is true for caller-initiated
// connects and false for timer-driven retries.
func (m *Manager) connectLocked(manual bool) {
	if m.state == Connecting || m.state == Connected {
		return
	}
	if manual {
		m.intentional = false
		m.exhausted = false
		m.attempt = 0
	} else if m.intentional {
		return
	}
	m.cancelRetryLocked()

	m.setStateLocked(Connecting)
	m.epoch++
	epoch := m.epoch

	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel

	m.logger.Info("connecting", "address", m.cfg.Address, "attempt", m.attempt)
	go m.dial(ctx, epoch)
}

// dial runs one connection attempt.
func (m *Manager) dial(ctx context.Context, epoch uint64) {
	conn, err := m.dialer.Dial(ctx, m.cfg.Address)

	m.mu.Lock()
	if epoch != m.epoch || m.state != Connecting {
		m.mu.Unlock()
		if conn != nil {
			conn.Close(transport.CloseNormal, transport.ReasonClientClosing)
		}
		return
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	if err != nil {
		m.logger.Warn("dial failed", "address", m.cfg.Address, "error", err)
		m.dropLocked(transport.CloseEvent{
			Code:   transport.CloseAbnormal,
			Reason: err.Error(),
			Err:    err,
		})
		m.mu.Unlock()
		m.deliver()
		return
	}

	m.conn = conn
	m.attempt = 0
	m.writer = newWriter(conn, m.queue, m.writer, func(err error) { m.writeFailed(epoch, err) })
	m.setStateLocked(Connected)

	flushed := m.queue.Len()
	if flushed > 0 {
		m.logger.Debug("flushing queued payloads", "count", flushed)
		m.writer.notify()
	}

	if m.monitor != nil {
		m.monitor.Start(health.Hooks{
			SendPing: func(p protocol.Ping) error { return m.sendFrame(epoch, p) },
			Expire:   func(err error) { m.healthExpired(epoch, err) },
		})
	}

	m.emitLocked(events.ChannelConnected, ConnectedEvent{Address: m.cfg.Address, Flushed: flushed})
	m.logger.Info("connected", "address", m.cfg.Address)
	w := m.writer
	m.mu.Unlock()

	go w.run()
	go m.readPump(conn, epoch)
	m.deliver()
}

// readPump delivers inbound frames until the transport ends.
func (m *Manager) readPump(conn transport.Conn, epoch uint64) {
	for msg := range conn.Messages() {
		m.handleFrame(epoch, msg)
	}
	m.transportClosed(epoch, conn.CloseEvent())
}

func (m *Manager) handleFrame(epoch uint64, msg transport.Message) {
	frame, err := protocol.Parse(msg.Data)
	if err != nil {
		if m.current(epoch) {
			m.malformed.Add(1)
			m.logger.Warn("dropping malformed frame", "error", err, "size", len(msg.Data))
		}
		return
	}
	if m.cfg.Debug {
		m.logger.Debug("frame received", "type", frame.Type, "size", len(msg.Data))
	}

	switch frame.Type {
	case protocol.TypePing:
		id, err := protocol.ProbeID(frame)
		if err != nil {
			m.malformed.Add(1)
			m.logger.Warn("dropping malformed ping", "error", err)
			return
		}
		if err := m.sendFrame(epoch, protocol.NewPong(id)); err != nil {
			m.logger.Warn("pong reply failed", "id", id, "error", err)
			return
		}
		m.pings.Add(1)

	case protocol.TypePong:
		id, err := protocol.ProbeID(frame)
		if err != nil {
			m.malformed.Add(1)
			m.logger.Warn("dropping malformed pong", "error", err)
			return
		}
		if !m.current(epoch) {
			return
		}
		if m.monitor == nil || !m.monitor.HandlePong(id) {
			m.logger.Debug("unexpected pong", "id", id)
		}

	default:
		m.mu.Lock()
		if epoch != m.epoch || m.conn == nil {
			m.mu.Unlock()
			return
		}
		m.received.Add(1)
		m.emitLocked(events.ChannelMessage, frame)
		m.mu.Unlock()
		m.deliver()
	}
}

// sendFrame hands a control frame to the writer of the given epoch.
func (m *Manager) sendFrame(epoch uint64, frame any) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.conn == nil {
		return transport.ErrNotConnected
	}
	return m.writer.sendControl(data)
}

func (m *Manager) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return epoch == m.epoch && m.conn != nil
}

// transportClosed handles the end of a connection reported by the read
// pump.
func (m *Manager) transportClosed(epoch uint64, ev transport.CloseEvent) {
	m.mu.Lock()
	if epoch != m.epoch || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.logger.Warn("connection lost",
		"address", m.cfg.Address,
		"code", ev.Code,
		"reason", ev.Reason,
	)
	m.dropLocked(ev)
	m.mu.Unlock()
	m.deliver()
}

// writeFailed handles a write error reported by the writer of epoch. The
// payload that failed is already back at the front of the queue.
func (m *Manager) writeFailed(epoch uint64, err error) {
	m.mu.Lock()
	if epoch != m.epoch || m.conn == nil {
		if m.intentional {
			m.queue.Clear()
		}
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.logger.Warn("write failed, dropping link", "address", m.cfg.Address, "error", err)
	m.dropLocked(transport.CloseEvent{
		Code:   transport.CloseAbnormal,
		Reason: reasonWriteFailed,
		Err:    err,
	})
	m.mu.Unlock()

	if cerr := conn.Close(transport.CloseGoingAway, reasonWriteFailed); cerr != nil {
		m.logger.Debug("close transport", "error", cerr)
	}
	m.deliver()
}

// healthExpired force-closes a link whose probe went unanswered.
func (m *Manager) healthExpired(epoch uint64, err error) {
	m.mu.Lock()
	if epoch != m.epoch || m.conn == nil || m.state != Connected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.logger.Warn("health check failed, forcing close", "address", m.cfg.Address, "error", err)
	m.dropLocked(transport.CloseEvent{
		Code:   transport.CloseHealthCheck,
		Reason: transport.ReasonHealthCheck,
		Err:    err,
	})
	m.mu.Unlock()

	if cerr := conn.Close(transport.CloseHealthCheck, transport.ReasonHealthCheck); cerr != nil {
		m.logger.Debug("close transport", "error", cerr)
	}
	m.deliver()
}

// dropLocked runs the unintentional-close path: publish the disconnect,
// then either arm a reconnect or give up. The disconnect that ends the
// last attempt carries Exhausted.
func (m *Manager) dropLocked(ev transport.CloseEvent) {
	m.epoch++
	if m.monitor != nil {
		m.monitor.Stop()
	}
	if m.writer != nil {
		m.writer.stop()
	}

	if ev.Err != nil {
		m.emitLocked(events.ChannelError, ErrorEvent{Err: ev.Err})
	}
	m.setStateLocked(Disconnected)

	retry := !m.intentional && m.sched.ShouldRetry(m.attempt)
	giveUp := !m.intentional && !retry && !m.exhausted
	m.emitLocked(events.ChannelDisconnected, DisconnectedEvent{
		Code:      ev.Code,
		Reason:    ev.Reason,
		Exhausted: giveUp,
	})

	if giveUp {
		m.exhausted = true
		m.logger.Error("giving up on link",
			"address", m.cfg.Address,
			"attempts", m.attempt,
		)
	}
	if !retry {
		return
	}

	delay := m.sched.NextDelay(m.attempt)
	m.attempt++
	m.setStateLocked(Reconnecting)
	m.emitLocked(events.ChannelReconnecting, ReconnectingEvent{Attempt: m.attempt, Delay: delay})

	m.retrySeq++
	seq := m.retrySeq
	m.retry = m.timer.Schedule(delay, func() { m.retryFired(seq) })
	m.logger.Info("reconnect scheduled", "attempt", m.attempt, "delay", delay)
}

func (m *Manager) retryFired(seq uint64) {
	m.mu.Lock()
	if seq != m.retrySeq || m.intentional || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.connectLocked(false)
	m.mu.Unlock()
	m.deliver()
}

func (m *Manager) cancelRetryLocked() {
	m.retrySeq++
	clock.Cancel(m.retry)
	m.retry = nil
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	old := m.state
	m.state = s
	m.emitLocked(events.ChannelState, StateEvent{Old: old, New: s})
}

func (m *Manager) emitLocked(channel string, data any) {
	m.outbox = append(m.outbox, pending{channel: channel, data: data})
}

// deliver publishes outbox events in order. If another goroutine is
// already delivering, it picks up the new events and deliver returns
// at once. Handlers run without mu held and may call back into the
// Manager.
func (m *Manager) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.outbox) > 0 {
		ev := m.outbox[0]
		m.outbox[0] = pending{}
		m.outbox = m.outbox[1:]
		m.mu.Unlock()

		m.dispatcher.Publish(ev.channel, ev.data)

		m.mu.Lock()
	}
	m.outbox = nil
	m.delivering = false
	m.mu.Unlock()
}

// IsHealthTimeout reports whether err came from a failed health probe.
func IsHealthTimeout(err error) bool {
	return errors.Is(err, health.ErrTimeout)
}
