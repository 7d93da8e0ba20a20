package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/heapsight-go/internal/config"
	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/confloader"
	"github.com/yndnr/heapsight-go/internal/infra/shutdown"
	"github.com/yndnr/heapsight-go/internal/locator"
	"github.com/yndnr/heapsight-go/internal/session"
	"github.com/yndnr/heapsight-go/internal/telemetry/logger"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// DefaultWatchInterval is the pause between refreshes.
const DefaultWatchInterval = 5 * time.Second

// shutdownTimeout bounds the shutdown hooks.
const shutdownTimeout = 10 * time.Second

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Attach, then refresh and relocate the root instances periodically",
		Description: "Serves Prometheus metrics on metrics.addr when set and reloads the log\n" +
			"level when the configuration file changes. Stops on SIGINT or SIGTERM.",
		Flags: []cli.Flag{
			pidFlag(),
			imageFlag(false),
			rootTypeFlag(),
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Pause between refreshes",
				Value: DefaultWatchInterval,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Listen address of /metrics (default from metrics.addr)",
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	env, err := GetEnv(c)
	if err != nil {
		return err
	}
	interval := c.Duration("interval")
	if interval <= 0 {
		return domain.ErrInvalidArgument.WithDetails("interval must be positive")
	}

	t, err := openTarget(c, env)
	if err != nil {
		return err
	}

	reg := metric.NewRegistry()
	s := newSession(c, env, t, session.WithMetrics(reg))
	if err := registerMetrics(reg, s, t); err != nil {
		_ = t.close()
		return err
	}

	sd := shutdown.NewHandler(shutdownTimeout, env.Logger)
	sd.OnShutdown("target", func(context.Context) error { return t.close() })
	sd.OnShutdown("session", func(context.Context) error {
		s.Drop()
		return nil
	})

	addr := c.String("metrics-addr")
	if addr == "" {
		addr = env.Config.Metrics.Addr
	}
	if addr != "" {
		srv := serveMetrics(env, addr, reg)
		sd.OnShutdown("metrics server", srv.Shutdown)
	}

	if env.ConfigPath != "" {
		w, err := watchConfig(env)
		if err != nil {
			env.Logger.Warn("config hot-reload disabled", "error", err)
		} else {
			sd.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	ctx, cancel := context.WithCancel(c.Context)
	loopDone := make(chan struct{})
	sd.OnShutdown("watch loop", func(context.Context) error {
		cancel()
		<-loopDone
		return nil
	})

	go func() {
		defer close(loopDone)
		watchLoop(ctx, c, env, s, interval)
	}()

	return sd.Wait(c.Context)
}

func registerMetrics(reg *metric.Registry, s *session.Session, t *target) error {
	if err := reg.Register(metric.NewCollector(s)); err != nil {
		return err
	}
	if t.store != nil {
		return t.store.RegisterMetrics(reg)
	}
	return nil
}

// serveMetrics starts the /metrics endpoint in the background.
func serveMetrics(env *Env, addr string, reg *metric.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		env.Logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// watchConfig reloads the log level whenever the configuration file changes.
func watchConfig(env *Env) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(env.Logger))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(env.ConfigPath); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(path string) {
		cfg, err := config.Load(path, nil)
		if err != nil {
			env.Logger.Warn("config reload failed", "path", path, "error", err)
			return
		}
		previous := logger.Level()
		logger.SetLevel(cfg.Log.Level)
		env.Logger.Info("config reloaded", "path", path, "log_level", logger.Level(), "previous_level", previous)
	})
	w.StartAsync()
	return w, nil
}

// watchLoop attaches, then refreshes every interval. The report is printed
// whenever the set of root instances changes.
func watchLoop(ctx context.Context, c *cli.Context, env *Env, s *session.Session, interval time.Duration) {
	var last domain.CandidateSet

	tick := func() {
		if err := reattach(ctx, s); err != nil {
			env.Logger.Warn("watch tick failed", "error", err)
			return
		}

		r := s.Report()
		current := domain.NewCandidateSet(r.Instances...)
		if last != nil && current.Equal(last) {
			env.Logger.Debug("root instances unchanged", "count", current.Len())
			return
		}
		last = current
		if err := printReport(c, env, r); err != nil {
			env.Logger.Warn("print report failed", "error", err)
		}
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// reattach refreshes the snapshot and brings the session back to where it
// was. With a known root type only the instances are located again;
// otherwise the whole chain runs.
func reattach(ctx context.Context, s *session.Session) error {
	if s.State() >= locator.RootTypeResolved {
		if _, err := s.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		if _, err := s.LocateRootInstances(ctx); err != nil {
			return fmt.Errorf("relocate: %w", err)
		}
		return nil
	}
	if s.State() > locator.Uninitialized {
		if _, err := s.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
	}
	if _, err := s.Attach(ctx); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}
