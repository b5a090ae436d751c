package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bauchermatch/internal/cache"
	"bauchermatch/internal/cli"
	"bauchermatch/internal/core"
	"bauchermatch/internal/dashboard"
	apphttp "bauchermatch/internal/http"
	applog "bauchermatch/internal/log"
	"bauchermatch/internal/services"
	"bauchermatch/internal/watch"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	be := cli.InitBackend(context.Background(), logger, cfg)

	listings := cache.NewLRUCache[[]core.ProcessedStatement](32, 5*time.Minute)
	caches := cache.NewManager()
	caches.Register(listings)
	caches.StartCleanup(10 * time.Minute)

	var publisher services.Publisher
	if client := cli.InitAMQP(logger, cfg); client != nil {
		publisher = client
	}

	svc := services.NewStatementService(be.Store, cli.BuildPipelines(cfg, logger), dashboard.NewView(time.Now), publisher, services.Options{
		DuplicatePolicy: cfg.DuplicatePolicy,
		StorageTimeout:  cfg.StorageTimeout,
		StatementCache:  listings,
		Logger:          logger.WithComponent(applog.ComponentService).Slog(),
	})
	svc.Init(context.Background())

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		DefaultVariant:    cfg.Variant(),
		MaxUploadBytes:    cfg.MaxUploadBytes,
		UploadTimeout:     cfg.ExtractionTimeout + 30*time.Second,
		RequestsPerMinute: cfg.UploadsPerMinute,
		TrustedProxies:    cfg.TrustedProxies,
		Logger:            logger,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 2 * time.Minute
	srv.WriteTimeout = cfg.ExtractionTimeout + time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close statement service", applog.FieldError, err)
		}
	})

	if cfg.InboxDir != "" {
		w := watch.New(watch.Config{
			Dir:      cfg.InboxDir,
			Variant:  cfg.Variant(),
			Debounce: cfg.InboxDebounce,
		}, svc, logger.WithComponent(applog.ComponentWatch).Slog())
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("Inbox watcher stopped", applog.FieldError, err, "dir", cfg.InboxDir)
			}
		}()
	}

	logger.Info("Starting bauchermatch server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"database", svc.DatabasePath(),
		"variant", cfg.Variant())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
