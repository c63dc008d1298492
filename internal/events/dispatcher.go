// Package events implements the link's publish/subscribe registry.
//
// Handlers are keyed by channel name and called synchronously, in
// registration order, on the publishing goroutine. A panicking handler is
// recovered and logged; the remaining handlers still run.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives the data published on a channel.
type Handler func(data any)

// Subscription is returned by Subscribe.
type Subscription struct {
	d       *Dispatcher
	channel string
	id      uint64
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string {
	return s.channel
}

// Unsubscribe removes this registration. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.d == nil {
		return
	}
	s.d.remove(s.channel, s.id)
}

type entry struct {
	id uint64
	fn Handler
}

// Dispatcher routes published data to channel subscribers.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string][]entry
	nextID uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		subs:   make(map[string][]entry),
	}
}

// Subscribe appends fn to channel's handler list. Registrations are not
// deduplicated: subscribing the same function twice delivers twice.
func (d *Dispatcher) Subscribe(channel string, fn Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.subs[channel] = append(d.subs[channel], entry{id: d.nextID, fn: fn})
	return &Subscription{d: d, channel: channel, id: d.nextID}
}

// Publish calls every current subscriber of channel with data.
// Publishing to a channel without subscribers is a no-op.
func (d *Dispatcher) Publish(channel string, data any) {
	d.mu.RLock()
	list := d.subs[channel]
	handlers := make([]entry, len(list))
	copy(handlers, list)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.call(channel, h, data)
	}
}

// Count returns the number of subscribers on channel.
func (d *Dispatcher) Count(channel string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[channel])
}

func (d *Dispatcher) call(channel string, h entry, data any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"channel", channel,
				"subscription", h.id,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	h.fn(data)
}

func (d *Dispatcher) remove(channel string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[channel]
	for i, e := range list {
		if e.id != id {
			continue
		}
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(d.subs, channel)
		} else {
			d.subs[channel] = next
		}
		return
	}
}
