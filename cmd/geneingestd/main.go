// Command geneingestd runs the gene-evidence ingestion daemon: it loads
// configuration, connects to Postgres, applies migrations, wires every
// internal component through internal/appctx, and keeps the process alive
// so the weekly bulk-refresh scheduler and any external API layer built on
// internal/control can drive runs.
//
// Configuration is loaded with config.Load()'s usual priority (env vars
// over config.yaml over defaults); see pkg/config/loader.go for the full
// key list. Graceful shutdown on SIGINT/SIGTERM stops the scheduler,
// cancels in-flight work via the root context, and closes the database,
// cache, and audit log in turn.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"geneingest/internal/appctx"
	"geneingest/pkg/config"
	"geneingest/pkg/logger"
	"geneingest/pkg/metrics"
	"geneingest/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	log := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)
		metrics.Get().SetServiceInfo(cfg.App.Version, cfg.App.Environment)
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	app, err := appctx.New(ctx, cfg, log, appctx.Deps{})
	if err != nil {
		log.Error("failed to build app context", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Normalizer.Prepare(ctx); err != nil {
		log.Error("failed to prepare gene normalizer", "error", err)
		os.Exit(1)
	}

	app.Scheduler.Start()
	defer app.Scheduler.Stop()

	log.Info("geneingestd started",
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
		"panel_size", len(cfg.Panel.Symbols),
		"sources", len(cfg.Sources.Entries),
	)

	runUntilShutdown(ctx, log)
}

// runUntilShutdown blocks until the root context is cancelled by a signal,
// logging the reason before returning so callers can unwind defers.
func runUntilShutdown(ctx context.Context, log *slog.Logger) {
	<-ctx.Done()
	log.Info("shutdown signal received, stopping geneingestd")
}
