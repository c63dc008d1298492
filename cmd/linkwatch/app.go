package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/livelink/internal/config"
	"github.com/rickgao/livelink/internal/version"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "linkwatch",
		Usage:   "Watch a resilient WebSocket link",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"LINKWATCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "WebSocket endpoint (overrides link.address)",
				EnvVars: []string{"LINKWATCH_ADDRESS"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging and per-frame logs",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json (overrides log.format)",
			},
			&cli.BoolFlag{
				Name:  "no-metrics",
				Usage: "Do not serve Prometheus metrics",
			},
			&cli.StringSliceFlag{
				Name:    "send",
				Aliases: []string{"s"},
				Usage:   "JSON frame to send once (repeatable, queued until connected)",
			},
			&cli.DurationFlag{
				Name:  "status-interval",
				Usage: "How often to publish a link health signal (0 disables)",
				Value: 30 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			logger := newLogger(os.Stderr, cfg.Log, cfg.Link.Debug)
			logger.Info("starting linkwatch", version.Attr())

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger, runOptions{
				Out:            os.Stdout,
				Metrics:        !c.Bool("no-metrics"),
				StatusInterval: c.Duration("status-interval"),
				Send:           c.StringSlice("send"),
			})
		},
	}
}

// loadConfig reads the config file (if any), applies flag overrides and
// validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if addr := c.String("address"); addr != "" {
		cfg.Link.Address = addr
	}
	if c.Bool("debug") {
		cfg.Link.Debug = true
	}
	if format := c.String("log-format"); format != "" {
		cfg.Log.Format = format
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. debug forces debug level.
func newLogger(w io.Writer, cfg config.LogConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
