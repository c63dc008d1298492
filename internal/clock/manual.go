package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Timer. Nothing fires until Advance is called.
// Callbacks run on the goroutine calling Advance, in due-time order
// (ties broken by scheduling order).
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualHandle
}

// NewManual returns a Manual timer at time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualHandle struct {
	m         *Manual
	due       time.Duration
	delay     time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	fired     bool
}

// Schedule implements Timer.
func (m *Manual) Schedule(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	h := &manualHandle{m: m, due: m.now + d, delay: d, seq: m.seq, fn: fn}
	m.pending = append(m.pending, h)
	return h
}

func (h *manualHandle) Cancel() {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if h.fired || h.cancelled {
		return
	}
	h.cancelled = true
	h.m.remove(h)
}

// remove drops h from the pending list. Must be called with lock held.
func (m *Manual) remove(h *manualHandle) {
	for i, p := range m.pending {
		if p == h {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d and runs every callback that
// becomes due, including callbacks scheduled by callbacks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		next.fired = true
		m.remove(next)
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

// nextDue returns the earliest pending callback due at or before target.
// Must be called with lock held.
func (m *Manual) nextDue(target time.Duration) *manualHandle {
	if len(m.pending) == 0 {
		return nil
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].due == m.pending[j].due {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].due < m.pending[j].due
	})
	if m.pending[0].due > target {
		return nil
	}
	return m.pending[0]
}

// Pending returns the number of armed callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// PendingDelays returns the requested delay of every armed callback in
// due-time order.
func (m *Manual) PendingDelays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := make([]*manualHandle, len(m.pending))
	copy(hs, m.pending)
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].due < hs[j].due })

	out := make([]time.Duration, len(hs))
	for i, h := range hs {
		out[i] = h.delay
	}
	return out
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}
