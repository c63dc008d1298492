package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livelink/internal/bridge"
	"github.com/rickgao/livelink/internal/config"
	"github.com/rickgao/livelink/internal/connection"
	"github.com/rickgao/livelink/internal/events"
	"github.com/rickgao/livelink/internal/metrics"
	"github.com/rickgao/livelink/internal/protocol"
)

// errLinkExhausted is returned when the link gives up reconnecting.
var errLinkExhausted = errors.New("link gave up after max reconnect attempts")

type runOptions struct {
	Out            io.Writer     // Event output
	Metrics        bool          // Serve Prometheus metrics
	StatusInterval time.Duration // Health signal period, 0 disables
	Send           []string      // Frames sent once at startup
}

// run wires the link and blocks until ctx is done or the link is
// exhausted.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts runOptions) error {
	dispatcher := events.NewDispatcher(logger)
	hub := bridge.NewHub()
	br := bridge.New(hub, dispatcher, cfg.Bridge.Prefix, logger)

	mgr := connection.NewManager(cfg.Link.Connection(), connection.Deps{
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	p := &printer{out: opts.Out}
	p.attach(dispatcher, cfg.Bridge.Prefix)

	exhausted := make(chan struct{})
	var exhaustOnce sync.Once
	dispatcher.Subscribe(events.ChannelDisconnected, func(data any) {
		if ev, ok := data.(connection.DisconnectedEvent); ok && ev.Exhausted {
			exhaustOnce.Do(func() { close(exhausted) })
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	if opts.Metrics {
		reg := metrics.NewRegistry()
		defer reg.Observe(dispatcher, cfg.Bridge.Prefix)()
		if err := reg.RegisterLink(mgr); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, reg.Handler())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", srv.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	br.Start()
	defer br.Stop()

	for _, frame := range opts.Send {
		if err := mgr.Send([]byte(frame)); err != nil && !errors.Is(err, connection.ErrQueued) {
			return fmt.Errorf("send %q: %w", frame, err)
		}
	}

	if opts.StatusInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.StatusInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					hub.Emit(bridge.SignalHealth, mgr.State())
				}
			}
		})
	}

	g.Go(func() error {
		mgr.Connect()
		defer mgr.Close()

		select {
		case <-gctx.Done():
			logger.Info("shutting down")
			return nil
		case <-exhausted:
			return errLinkExhausted
		}
	})

	return g.Wait()
}

// printer writes one line per event.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) attach(d *events.Dispatcher, prefix string) {
	d.Subscribe(events.ChannelConnected, func(data any) {
		ev := data.(connection.ConnectedEvent)
		p.printf("connected address=%s flushed=%d", ev.Address, ev.Flushed)
	})
	d.Subscribe(events.ChannelDisconnected, func(data any) {
		ev := data.(connection.DisconnectedEvent)
		p.printf("disconnected code=%d reason=%q intentional=%t exhausted=%t",
			ev.Code, ev.Reason, ev.Intentional, ev.Exhausted)
	})
	d.Subscribe(events.ChannelReconnecting, func(data any) {
		ev := data.(connection.ReconnectingEvent)
		p.printf("reconnecting attempt=%d delay=%s", ev.Attempt, ev.Delay)
	})
	d.Subscribe(events.ChannelError, func(data any) {
		ev := data.(connection.ErrorEvent)
		p.printf("error %v", ev.Err)
	})
	d.Subscribe(events.ChannelState, func(data any) {
		ev := data.(connection.StateEvent)
		p.printf("state %s -> %s", ev.Old, ev.New)
	})
	d.Subscribe(events.ChannelMessage, func(data any) {
		f := data.(protocol.Frame)
		p.printf("message type=%s %s", f.Type, f.Raw)
	})
	for _, name := range bridge.Signals {
		name := name
		d.Subscribe(bridge.Channel(prefix, name), func(data any) {
			p.printf("signal %s %+v", name, data)
		})
	}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}
