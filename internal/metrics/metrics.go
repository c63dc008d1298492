package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/livelink/internal/bridge"
	"github.com/rickgao/livelink/internal/connection"
	"github.com/rickgao/livelink/internal/events"
	"github.com/rickgao/livelink/internal/transport"
)

// Namespace prefixes every metric name.
const Namespace = "livelink"

// Disconnect classes used as the "class" label.
const (
	ClassIntentional = "intentional"
	ClassNormal      = "normal"
	ClassHealth      = "health"
	ClassAbnormal    = "abnormal"
	ClassExhausted   = "exhausted"
)

// LinkSource exposes the counters a Manager keeps.
type LinkSource interface {
	State() connection.Snapshot
	Stats() connection.Stats
}

var _ LinkSource = (*connection.Manager)(nil)

// Registry holds all link metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	State          prometheus.Gauge
	Connects       prometheus.Counter
	Disconnects    *prometheus.CounterVec
	Reconnects     prometheus.Counter
	ReconnectDelay prometheus.Histogram
	HealthFailures prometheus.Counter
	Errors         prometheus.Counter
	Signals        *prometheus.CounterVec
}

// NewRegistry creates the metrics and registers them together with the
// Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "link_state",
			Help:      "Current link state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=closing).",
		}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connects_total",
			Help:      "Successful connections.",
		}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "disconnects_total",
			Help:      "Disconnect events by class.",
		}, []string{"class"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled.",
		}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay before each reconnect attempt.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		HealthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "health_failures_total",
			Help:      "Links force-closed after an unanswered ping.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors published on the error channel.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signals_total",
			Help:      "External signals relayed by the bridge.",
		}, []string{"signal"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.State,
		r.Connects,
		r.Disconnects,
		r.Reconnects,
		r.ReconnectDelay,
		r.HealthFailures,
		r.Errors,
		r.Signals,
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Observe subscribes to the link channels of d and, when prefix is not
// empty, to the bridge channels under prefix. The returned function
// removes the subscriptions.
func (r *Registry) Observe(d *events.Dispatcher, prefix string) func() {
	subs := []*events.Subscription{
		d.Subscribe(events.ChannelState, func(data any) {
			if ev, ok := data.(connection.StateEvent); ok {
				r.State.Set(float64(ev.New))
			}
		}),
		d.Subscribe(events.ChannelConnected, func(any) {
			r.Connects.Inc()
		}),
		d.Subscribe(events.ChannelDisconnected, func(data any) {
			if ev, ok := data.(connection.DisconnectedEvent); ok {
				r.Disconnects.WithLabelValues(Classify(ev)).Inc()
			}
		}),
		d.Subscribe(events.ChannelReconnecting, func(data any) {
			if ev, ok := data.(connection.ReconnectingEvent); ok {
				r.Reconnects.Inc()
				r.ReconnectDelay.Observe(ev.Delay.Seconds())
			}
		}),
		d.Subscribe(events.ChannelError, func(data any) {
			r.Errors.Inc()
			if ev, ok := data.(connection.ErrorEvent); ok && connection.IsHealthTimeout(ev.Err) {
				r.HealthFailures.Inc()
			}
		}),
	}

	if prefix != "" {
		for _, name := range bridge.Signals {
			name := name
			subs = append(subs, d.Subscribe(bridge.Channel(prefix, name), func(any) {
				r.Signals.WithLabelValues(name).Inc()
			}))
		}
	}

	return func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}
}

// Classify maps a disconnect event to its metric class.
func Classify(ev connection.DisconnectedEvent) string {
	switch {
	case ev.Exhausted:
		return ClassExhausted
	case ev.Intentional:
		return ClassIntentional
	case ev.Code == transport.CloseHealthCheck:
		return ClassHealth
	case ev.Code == transport.CloseNormal || ev.Code == transport.CloseGoingAway:
		return ClassNormal
	default:
		return ClassAbnormal
	}
}

// RegisterLink exposes the queue and inbound counters of src. They are
// read at scrape time.
func (r *Registry) RegisterLink(src LinkSource) error {
	fns := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Payloads waiting for the link.",
		}, func() float64 { return float64(src.State().Queued) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reconnect_attempt",
			Help:      "Reconnect attempts since the last successful connect.",
		}, func() float64 { return float64(src.State().Attempt) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_evicted_total",
			Help:      "Queued payloads dropped because the queue was full.",
		}, func() float64 { return float64(src.Stats().Queue.TotalEvicted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_flushed_total",
			Help:      "Queued payloads written after a reconnect.",
		}, func() float64 { return float64(src.Stats().Queue.TotalFlushed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_received_total",
			Help:      "Inbound frames delivered to subscribers.",
		}, func() float64 { return float64(src.Stats().MessagesReceived) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames dropped because they could not be parsed.",
		}, func() float64 { return float64(src.Stats().MalformedDropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pings_answered_total",
			Help:      "Server pings answered with a pong.",
		}, func() float64 { return float64(src.Stats().PingsAnswered) }),
	}

	for _, c := range fns {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
