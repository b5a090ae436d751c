package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bauchermatch/internal/cli"
	applog "bauchermatch/internal/log"
	"bauchermatch/internal/services"
	gsheet "bauchermatch/internal/sheets/google"
	"bauchermatch/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting bauchermatch-worker")

	if !cfg.SheetsEnabled() {
		logger.Error("Sheets export disabled - set GOOGLE_SPREADSHEET_ID to run the worker")
		os.Exit(1)
	}

	be := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Failed to close storage", applog.FieldError, err)
			}
		}
	}()

	sheetsClient, err := gsheet.NewFromConfig(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}

	exporter := services.NewSeriesExporter(be.Store, sheetsClient,
		logger.WithComponent(applog.ComponentSheets).Slog())
	exportWorker := worker.NewExportWorker(exporter)

	amqpClient := cli.InitAMQP(logger, cfg)
	var processor *services.ExportProcessor
	if amqpClient == nil {
		processor = services.NewExportProcessor(exporter, services.ExportProcessorConfig{
			PollInterval: cfg.ExportPollInterval,
		})
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Failed to stop export processor", applog.FieldError, err)
			}
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", applog.FieldError, err)
			}
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			// Recover from events missed while the worker was down.
			if err := exportWorker.StartupExport(gctx); err != nil {
				logger.Error("Startup export failed", applog.FieldError, err)
			}
			return amqpClient.Consume(gctx, exportWorker.HandleEvent)
		})
	} else {
		logger.Info("AMQP not configured, polling storage for changes", "interval", cfg.ExportPollInterval)
		if err := processor.Start(gctx); err != nil {
			logger.Error("Failed to start export processor", applog.FieldError, err)
			os.Exit(1)
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
