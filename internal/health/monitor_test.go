package health

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/livelink/internal/clock"
	"github.com/rickgao/livelink/internal/protocol"
)

// captureTimer wraps a Manual timer and remembers every scheduled
// callback so tests can invoke one again.
type captureTimer struct {
	*clock.Manual
	mu  sync.Mutex
	fns map[time.Duration][]func()
}

func newCaptureTimer() *captureTimer {
	return &captureTimer{Manual: clock.NewManual(), fns: make(map[time.Duration][]func())}
}

func (c *captureTimer) Schedule(d time.Duration, fn func()) clock.Handle {
	c.mu.Lock()
	c.fns[d] = append(c.fns[d], fn)
	c.mu.Unlock()
	return c.Manual.Schedule(d, fn)
}

func (c *captureTimer) last(d time.Duration) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.fns[d]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

type recorder struct {
	mu      sync.Mutex
	pings   []protocol.Ping
	expired []error
	sendErr error
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		SendPing: func(p protocol.Ping) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.pings = append(r.pings, p)
			return r.sendErr
		},
		Expire: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.expired = append(r.expired, err)
		},
	}
}

func testConfig() Config {
	return Config{Interval: 10 * time.Second, PongTimeout: 3 * time.Second}
}

func newTestMonitor(timer clock.Timer) *Monitor {
	m := NewMonitor(testConfig(), timer, nil)
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("probe-%d", n)
	}
	m.now = func() time.Time { return time.UnixMilli(1000) }
	return m
}

func TestMonitor_SendsPingOnInterval(t *testing.T) {
	timer := clock.NewManual()
	m := newTestMonitor(timer)
	rec := &recorder{}
	m.Start(rec.hooks())

	timer.Advance(9 * time.Second)
	if len(rec.pings) != 0 {
		t.Fatalf("ping sent before interval elapsed")
	}

	timer.Advance(time.Second)
	if len(rec.pings) != 1 {
		t.Fatalf("pings = %d, want 1", len(rec.pings))
	}
	p := rec.pings[0]
	if p.Type != protocol.TypePing || p.ID != "probe-1" || p.Timestamp != 1000 {
		t.Errorf("ping = %+v", p)
	}

	probe, ok := m.Outstanding()
	if !ok || probe.ID != "probe-1" {
		t.Errorf("Outstanding() = %+v, %v", probe, ok)
	}
}

func TestMonitor_PongClearsProbeSilently(t *testing.T) {
	timer := clock.NewManual()
	m := newTestMonitor(timer)
	rec := &recorder{}
	m.Start(rec.hooks())

	timer.Advance(10 * time.Second)
	if !m.HandlePong("probe-1") {
		t.Fatal("HandlePong(probe-1) = false")
	}
	if _, ok := m.Outstanding(); ok {
		t.Error("probe still outstanding after pong")
	}

	timer.Advance(5 * time.Second)
	if len(rec.expired) != 0 {
		t.Errorf("expired after pong: %v", rec.expired)
	}

	timer.Advance(5 * time.Second)
	if len(rec.pings) != 2 || rec.pings[1].ID != "probe-2" {
		t.Errorf("expected second probe, got %+v", rec.pings)
	}
}

func TestMonitor_UnmatchedPongIgnored(t *testing.T) {
	timer := clock.NewManual()
	m := newTestMonitor(timer)
	rec := &recorder{}
	m.Start(rec.hooks())
	timer.Advance(10 * time.Second)

	if m.HandlePong("someone-else") {
		t.Error("HandlePong accepted a foreign id")
	}
	if _, ok := m.Outstanding(); !ok {
		t.Error("probe cleared by foreign pong")
	}
}

func TestMonitor_AtMostOneOutstanding(t *testing.T) {
	timer := clock.NewManual()
	cfg := Config{Interval: time.Second, PongTimeout: 5 * time.Second}
	m := NewMonitor(cfg, timer, nil)
	rec := &recorder{}
	m.Start(rec.hooks())

	// Four intervals pass inside one pong timeout.
	timer.Advance(4 * time.Second)
	if len(rec.pings) != 1 {
		t.Errorf("pings = %d, want 1 while a probe is outstanding", len(rec.pings))
	}
}

func TestMonitor_TimeoutExpiresOnce(t *testing.T) {
	timer := newCaptureTimer()
	m := newTestMonitor(timer)
	rec := &recorder{}
	m.Start(rec.hooks())

	timer.Advance(13 * time.Second)
	if len(rec.expired) != 1 {
		t.Fatalf("expired = %d, want 1", len(rec.expired))
	}
	if !errors.Is(rec.expired[0], ErrTimeout) {
		t.Errorf("expire error = %v, want ErrTimeout", rec.expired[0])
	}
	if m.Running() {
		t.Error("monitor still running after expiry")
	}

	// Invoking the timeout callback again is a no-op.
	timer.last(3 * time.Second)()
	if len(rec.expired) != 1 {
		t.Errorf("expired = %d after duplicate callback, want 1", len(rec.expired))
	}

	// No further probes after expiry.
	timer.Advance(time.Minute)
	if len(rec.pings) != 1 {
		t.Errorf("pings = %d after expiry, want 1", len(rec.pings))
	}
}

func TestMonitor_StopCancelsTimers(t *testing.T) {
	timer := clock.NewManual()
	m := newTestMonitor(timer)
	rec := &recorder{}
	m.Start(rec.hooks())
	timer.Advance(10 * time.Second)

	m.Stop()
	if timer.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", timer.Pending())
	}

	timer.Advance(time.Minute)
	if len(rec.expired) != 0 || len(rec.pings) != 1 {
		t.Errorf("activity after Stop: pings=%d expired=%d", len(rec.pings), len(rec.expired))
	}
}

func TestMonitor_StaleTimeoutFromPreviousEpoch(t *testing.T) {
	timer := newCaptureTimer()
	m := newTestMonitor(timer)
	rec := &recorder{}
	m.Start(rec.hooks())
	timer.Advance(10 * time.Second)
	stale := timer.last(3 * time.Second)

	// New connection epoch starts clean.
	m.Start(rec.hooks())
	if _, ok := m.Outstanding(); ok {
		t.Fatal("restart kept the previous probe")
	}

	stale()
	if len(rec.expired) != 0 {
		t.Errorf("stale timeout expired new epoch: %v", rec.expired)
	}
}

func TestMonitor_SendFailureStillTimesOut(t *testing.T) {
	timer := clock.NewManual()
	m := newTestMonitor(timer)
	rec := &recorder{sendErr: errors.New("write failed")}
	m.Start(rec.hooks())

	timer.Advance(13 * time.Second)
	if len(rec.expired) != 1 {
		t.Errorf("expired = %d, want 1", len(rec.expired))
	}
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(Config{}, nil, nil)
	if m.cfg.Interval != DefaultInterval || m.cfg.PongTimeout != DefaultPongTimeout {
		t.Errorf("cfg = %+v, want defaults", m.cfg)
	}
	if m.Running() {
		t.Error("new monitor is running")
	}
}
