package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ruptura/internal/category"
	"ruptura/internal/config"
	"ruptura/internal/extract"
	"ruptura/internal/logging"
	"ruptura/internal/report"
	"ruptura/internal/web"
	"ruptura/internal/worker"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	creds := cfg.Athena.Credentials()
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"output_dir", cfg.Report.OutputDir,
		"cache_path", cfg.Cache.Path,
		"worker_max_concurrent", cfg.Workers.MaxConcurrent,
		"athena_configured", creds.Complete(),
	)

	// Wire the pipeline
	extractor := extract.New()
	transformer := report.NewTransformer(extractor)
	cache := category.NewCache(cfg.Cache.Path, category.NewAthenaFetcher(creds))
	exporter := report.NewExporter(cfg.Report.OutputDir)
	runner := report.NewRunner(transformer, cache, exporter, slog.Default())
	pool := worker.NewPool(cfg.Workers.MaxConcurrent, cfg.Workers.MaxWait)

	server := web.NewServer(runner, pool, creds, cfg.Report.ScanExt)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := pool.ActiveCount(); active > 0 {
			slog.Info("waiting for report runs to complete", "active", active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	addr := cfg.Server.Addr()
	slog.Info("server starting", "addr", addr)
	if err := server.Start(addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
