// Package app wires all visemesync subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithClock, WithMetrics,
// WithListener). When an option is not provided, New uses the real
// implementation.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/visemesync/internal/bridge"
	"github.com/MrWong99/visemesync/internal/clock"
	"github.com/MrWong99/visemesync/internal/config"
	"github.com/MrWong99/visemesync/internal/health"
	"github.com/MrWong99/visemesync/internal/hub"
	"github.com/MrWong99/visemesync/internal/observe"
	"github.com/MrWong99/visemesync/pkg/audio"
)

// shutdownGrace bounds how long in-flight HTTP requests may take to finish
// once Run's context is cancelled. Websocket connections are closed by the
// hub shutdown that follows.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     atomic.Pointer[config.Config]
	cfgPath string
	level   *slog.LevelVar

	clock       clock.Source
	metrics     *observe.Metrics
	metricsHTTP http.Handler
	listener    net.Listener

	// Subsystems, initialised in New and torn down in Shutdown.
	hub     *hub.Hub
	bridge  *bridge.Server
	health  *health.Handler
	watcher *config.Watcher
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConfigPath enables hot reload of the YAML file at path. The file is
// expected to hold the configuration passed to New.
func WithConfigPath(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithLevelVar lets config reloads adjust the level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithClock replaces the hub's wall clock.
func WithClock(c clock.Source) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics. Defaults to the Prometheus
// default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHTTP = h }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It does not start
// serving; call [App.Run].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHTTP == nil {
		a.metricsHTTP = promhttp.Handler()
	}

	// ── 1. Hub ───────────────────────────────────────────────────────────
	hubOpts := []hub.Option{hub.WithMetrics(a.metrics)}
	if a.clock != nil {
		hubOpts = append(hubOpts, hub.WithClock(a.clock))
	}
	a.hub = hub.New(cfg.HubConfig(), hubOpts...)
	a.closers = append(a.closers, a.hub.Close)

	// ── 2. HTTP surface ──────────────────────────────────────────────────
	a.bridge = bridge.New(a.hub,
		bridge.WithMetrics(a.metrics),
		bridge.WithAnalyserConfig(a.analyserConfig),
	)
	a.health = health.New(health.Checker{Name: "hub", Check: a.checkHub})

	mux := http.NewServeMux()
	a.bridge.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.metricsHTTP)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	// ── 3. Config watcher ────────────────────────────────────────────────
	if a.cfgPath != "" {
		w, err := config.NewWatcher(a.cfgPath, a.applyConfig)
		if err != nil {
			a.hub.Close()
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		// Stop watching before the hub goes away.
		a.closers = append([]func() error{func() error { w.Stop(); return nil }}, a.closers...)
	}

	return a, nil
}

// Hub returns the engine instance.
func (a *App) Hub() *hub.Hub { return a.hub }

// Config returns the active configuration.
func (a *App) Config() *config.Config { return a.cfg.Load() }

func (a *App) analyserConfig(sampleRate int) audio.AnalyserConfig {
	return a.cfg.Load().AnalyserConfig(sampleRate)
}

// checkHub fails while the hub's error channel is saturated, which means
// failures are being dropped.
func (a *App) checkHub(context.Context) error {
	errs := a.hub.Errors()
	if n := len(errs); n > 0 && n == cap(errs) {
		return fmt.Errorf("error backlog full (%d)", n)
	}
	return nil
}

// applyConfig hot-reloads the parts of the configuration that do not need a
// restart.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	a.cfg.Store(new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EngineChanged {
		a.hub.SetConfig(new.HubConfig())
		slog.Info("engine configuration updated; applies from the next session")
	}
	if d.AudioChanged {
		slog.Info("audio analyser configuration updated; applies to new ingest connections",
			"fft_size", new.Audio.FFTSize,
			"smoothing", new.Audio.Smoothing,
		)
	}
	if d.ListenAddrChanged {
		slog.Warn("server.listen_addr changed; restart required",
			"current", old.Server.ListenAddr,
			"configured", new.Server.ListenAddr,
		)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and drains hub errors until ctx is cancelled or the server
// fails. It returns nil after a clean shutdown of the HTTP server.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
	}
	slog.Info("listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logHubErrors(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.health.SetDraining(true)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown incomplete", "err", err)
		}
		return nil
	})

	return g.Wait()
}

// logHubErrors reports session failures from the hub side channel.
func (a *App) logHubErrors(ctx context.Context) {
	errs := a.hub.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if errors.Is(err, hub.ErrUnsupportedEnvironment) {
				slog.Warn("audio source unsupported", "err", err)
				continue
			}
			slog.Error("session failed", "err", err)
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the config watcher and the hub. It is safe to call more
// than once; only the first call has an effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
