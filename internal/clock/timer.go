package clock

import (
	"sync"
	"time"
)

// Timer schedules delayed callbacks.
type Timer interface {
	// Schedule runs fn once after d. The returned handle cancels it.
	Schedule(d time.Duration, fn func()) Handle
}

// Handle cancels a scheduled callback.
// Cancel is idempotent: cancelling a fired or already-cancelled
// callback is a no-op.
type Handle interface {
	Cancel()
}

// Real is a Timer backed by the runtime timer heap.
type Real struct{}

// Schedule implements Timer.
func (Real) Schedule(d time.Duration, fn func()) Handle {
	return &realHandle{t: time.AfterFunc(d, fn)}
}

type realHandle struct {
	once sync.Once
	t    *time.Timer
}

func (h *realHandle) Cancel() {
	h.once.Do(func() { h.t.Stop() })
}

// Cancel cancels h if it is non-nil.
func Cancel(h Handle) {
	if h != nil {
		h.Cancel()
	}
}
