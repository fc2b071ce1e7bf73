package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/arnasbieliauskas/ntduomenys/ingest"
	"github.com/arnasbieliauskas/ntduomenys/listings"
	"github.com/arnasbieliauskas/ntduomenys/statsapi"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfgPath := env("NTD_CONFIG", "ntduomenys.yaml")
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := statsapi.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if v := os.Getenv("NTD_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("NTD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NTD_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(cfg.LogLevel),
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := listings.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Schema bring-up is fatal: nothing can serve correct answers on a
	// malformed store.
	if err := store.Initialize(ctx); err != nil {
		logger.Error("initialize store", "error", err)
		os.Exit(1)
	}

	var source ingest.Source
	if cfg.Feed.URL != "" {
		source = ingest.NewHTTPSource(cfg.Feed.URL, cfg.Feed.Timeout.Std())
	}
	runner := ingest.NewRunner(store, source, logger, cfg.Feed.Debounce.Std())
	if source != nil {
		go runner.Run(ctx)
	} else {
		logger.Warn("no feed url configured, ingestion triggers are inert")
	}

	api := statsapi.NewServer(store, runner, logger)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "db", cfg.DBPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
