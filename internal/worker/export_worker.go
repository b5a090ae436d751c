package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bauchermatch/internal/amqp"
)

// Exporter rewrites the spreadsheet series of the given years.
type Exporter interface {
	ExportYears(ctx context.Context, years []int) error
	ExportAll(ctx context.Context) error
}

// ExportWorker keeps the spreadsheet in step with storage by reacting to
// statement events.
type ExportWorker struct {
	exporter Exporter
}

func NewExportWorker(exporter Exporter) *ExportWorker {
	return &ExportWorker{exporter: exporter}
}

// HandleEvent re-exports every year touched by ev. Returning an error makes
// the consumer requeue the message.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.StatementEvent) error {
	slog.InfoContext(ctx, "Processing statement event",
		"type", ev.Type,
		"id", ev.ID,
		"years", ev.Years)

	if len(ev.Years) == 0 {
		slog.WarnContext(ctx, "Statement event without years, skipping", "type", ev.Type)
		return nil
	}

	if err := w.exporter.ExportYears(ctx, ev.Years); err != nil {
		return fmt.Errorf("export years %v: %w", ev.Years, err)
	}

	slog.InfoContext(ctx, "Statement event exported", "type", ev.Type, "years", ev.Years)
	return nil
}

// StartupExport writes every persisted year once, to recover from events
// missed while the worker was down.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	slog.InfoContext(ctx, "Running startup export")
	if err := w.exporter.ExportAll(ctx); err != nil {
		return fmt.Errorf("startup export: %w", err)
	}
	slog.InfoContext(ctx, "Startup export completed")
	return nil
}
