package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexuslog/internal/app"
	"nexuslog/internal/category"
	"nexuslog/internal/classify"
	"nexuslog/internal/config"
	"nexuslog/internal/extractor"
	"nexuslog/internal/httpapi"
	"nexuslog/internal/ingest"
	"nexuslog/internal/observability"
	"nexuslog/internal/provider"
	"nexuslog/internal/store"
	"nexuslog/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		Driver:       cfg.Database.Driver,
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	upstreamHTTPClient := app.NewHTTPClient(cfg.RequestTimeout)

	adapters, err := app.Adapters(cfg.Providers, upstreamHTTPClient, metrics)
	if err != nil {
		logger.Error("provider setup failed", "error", err)
		os.Exit(1)
	}
	router := provider.NewRouter(adapters,
		provider.WithUsageRecorder(db),
		provider.WithLogger(logger),
		provider.WithObserver(metrics),
	)
	if len(router.Adapters()) == 0 {
		logger.Warn("no AI provider configured; every capability will return its default")
	}
	metrics.SetProviders(router.Adapters(), router.Skipped())
	logger.Info("providers ready", "active", router.Adapters(), "skipped", router.Skipped())

	ext, err := extractor.New(router,
		extractor.WithHTTPClient(upstreamHTTPClient),
		extractor.WithProbeTimeout(cfg.Extractor.ProbeTimeout),
		extractor.WithWorkers(cfg.Extractor.Workers),
		extractor.WithLogger(logger),
	)
	if err != nil {
		logger.Error("extractor setup failed", "error", err)
		os.Exit(1)
	}
	defer ext.Release()

	files, staticFiles, err := app.FileStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("file storage setup failed", "error", err)
		os.Exit(1)
	}

	categories := category.New(db, cfg.MaxTopLevelCategories, logger)
	deps := ingest.Deps{
		Store:      db,
		Categories: categories,
		Extractor:  ext,
		Classifier: classify.New(router, cfg.ClassifyTimeout, logger),
		AI:         router,
		Files:      files,
		Observer:   metrics,
		Logger:     logger,
	}
	sheetsClient, err := app.Sheets(cfg.Sheets, upstreamHTTPClient, metrics)
	if err != nil {
		logger.Error("google sheets setup failed", "error", err)
		os.Exit(1)
	}
	if sheetsClient != nil {
		deps.Sheets = sheetsClient
	}
	ingester := ingest.New(deps)

	bot := app.Telegram(cfg.Telegram, upstreamHTTPClient, metrics)
	handlerCfg := telegram.HandlerConfig{
		Messenger:      bot,
		Ingester:       ingester,
		Categories:     categories,
		Speaker:        router,
		SecretToken:    cfg.Telegram.WebhookSecret,
		AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
		Logger:         logger,
	}
	if cfg.Telegram.RedisURL != "" {
		dedup, err := telegram.NewRedisDeduper(ctx, cfg.Telegram.RedisURL, cfg.Telegram.DedupTTL)
		if err != nil {
			logger.Warn("redis unavailable, update dedup disabled", "error", err)
		} else {
			defer func() { _ = dedup.Close() }()
			handlerCfg.Deduper = dedup
		}
	}
	if !bot.Configured() {
		logger.Warn("TELEGRAM_BOT_TOKEN not set; webhook updates cannot be answered")
	}

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Store:          db,
		Categories:     categories,
		Ingester:       ingester,
		Speaker:        router,
		Providers:      router,
		Telegram:       bot,
		Webhook:        telegram.NewHandler(handlerCfg),
		Files:          staticFiles,
		StorageBackend: files.Backend(),
		SheetsEnabled:  sheetsClient != nil,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       35 * time.Second,
		WriteTimeout:      cfg.IngestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "database", db.Driver())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
