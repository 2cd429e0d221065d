package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/visemesync/internal/app"
	"github.com/MrWong99/visemesync/internal/config"
	"github.com/MrWong99/visemesync/internal/observe"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return serve(cmd.Context(), path, listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override server.listen_addr")
	return cmd
}

func serve(parent context.Context, path, listen string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.ListenAddr = listen
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("visemesync starting",
		"version", Version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"variant", cfg.Timeline.Variant,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	if parent == nil {
		parent = context.Background()
	}
	tel, err := observe.InitProvider(parent, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{
		app.WithLevelVar(&level),
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.Handler),
	}
	if path != "" {
		opts = append(opts, app.WithConfigPath(path))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; run without --config to use defaults", path)
	}
	return cfg, err
}
