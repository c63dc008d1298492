// Package bridge surfaces out-of-band signals on the link's dispatcher.
//
// A SignalSource delivers named signals that do not travel over the
// managed transport. The Bridge republishes each known signal, payload
// unchanged, on a prefixed dispatcher channel such as "triad:health", so
// consumers only ever depend on the dispatcher.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/rickgao/livelink/internal/events"
)

// DefaultPrefix namespaces bridged channels away from transport channels.
const DefaultPrefix = "triad"

// Signal names understood by the bridge.
const (
	SignalHealth     = "health"
	SignalCosts      = "costs"
	SignalKillswitch = "killswitch"
	SignalLog        = "log"
)

// Signals lists every bridged signal name.
var Signals = []string{SignalHealth, SignalCosts, SignalKillswitch, SignalLog}

// SignalSource delivers named external signals.
type SignalSource interface {
	// Subscribe registers handler for signal name and returns a function
	// that removes the registration.
	Subscribe(name string, handler func(payload any)) (unsubscribe func())
}

// Publisher is the subset of the dispatcher the bridge needs.
type Publisher interface {
	Publish(channel string, data any)
}

var _ Publisher = (*events.Dispatcher)(nil)

// Channel returns the dispatcher channel for signal name under prefix.
func Channel(prefix, name string) string {
	return prefix + ":" + name
}

// Bridge maps SignalSource signals onto dispatcher channels.
type Bridge struct {
	source  SignalSource
	out     Publisher
	mapping map[string]string
	logger  *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

// New creates a Bridge. An empty prefix selects DefaultPrefix.
func New(source SignalSource, out Publisher, prefix string, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	mapping := make(map[string]string, len(Signals))
	for _, name := range Signals {
		mapping[name] = Channel(prefix, name)
	}

	return &Bridge{
		source:  source,
		out:     out,
		mapping: mapping,
		logger:  logger.With("component", "bridge"),
	}
}

// Mapping returns a copy of the signal → channel table.
func (b *Bridge) Mapping() map[string]string {
	out := make(map[string]string, len(b.mapping))
	for k, v := range b.mapping {
		out[k] = v
	}
	return out
}

// Start subscribes to every mapped signal. Calling Start twice without
// Stop is a no-op.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsubs != nil {
		return
	}

	b.unsubs = make([]func(), 0, len(Signals))
	for _, name := range Signals {
		channel := b.mapping[name]
		unsub := b.source.Subscribe(name, func(payload any) {
			b.out.Publish(channel, payload)
		})
		b.unsubs = append(b.unsubs, unsub)
	}

	b.logger.Debug("bridge started", "signals", len(Signals))
}

// Stop releases all source subscriptions.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, unsub := range unsubs {
		if unsub != nil {
			unsub()
		}
	}
	if unsubs != nil {
		b.logger.Debug("bridge stopped")
	}
}
