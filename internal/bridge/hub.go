package bridge

import (
	"sort"
	"sync"
)

// Hub is an in-process SignalSource: any component can Emit a named
// signal and every subscriber of that name receives it synchronously.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]map[*hubSub]struct{}
	order uint64
}

type hubSub struct {
	seq uint64
	fn  func(payload any)
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSub]struct{})}
}

// Subscribe implements SignalSource.
func (h *Hub) Subscribe(name string, handler func(payload any)) func() {
	h.mu.Lock()
	h.order++
	s := &hubSub{seq: h.order, fn: handler}
	if h.subs[name] == nil {
		h.subs[name] = make(map[*hubSub]struct{})
	}
	h.subs[name][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[name], s)
			if len(h.subs[name]) == 0 {
				delete(h.subs, name)
			}
			h.mu.Unlock()
		})
	}
}

// Emit delivers payload to every subscriber of name in subscription order.
// Returns the number of subscribers reached.
func (h *Hub) Emit(name string, payload any) int {
	h.mu.RLock()
	list := make([]*hubSub, 0, len(h.subs[name]))
	for s := range h.subs[name] {
		list = append(list, s)
	}
	h.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	for _, s := range list {
		s.fn(payload)
	}
	return len(list)
}

// Len returns the number of subscribers for name.
func (h *Hub) Len(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[name])
}
