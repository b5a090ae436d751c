package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bauchermatch/internal/core"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often storage is checked for changes (default: 30s)
	PollInterval time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: 30 * time.Second,
	}
}

// ExportProcessor polls storage and re-exports the years whose series
// changed since the last successful export. It is used when no message
// broker is configured.
type ExportProcessor struct {
	exporter *SeriesExporter
	config   ExportProcessorConfig
	logger   *slog.Logger

	// Last exported series per year; touched only by the loop goroutine.
	last map[int]core.ChartSeries

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportProcessor creates a new export processor
func NewExportProcessor(exporter *SeriesExporter, config ExportProcessorConfig) *ExportProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultExportProcessorConfig().PollInterval
	}
	logger := slog.Default()
	if exporter != nil {
		logger = exporter.logger
	}
	return &ExportProcessor{
		exporter: exporter,
		config:   config,
		logger:   logger,
		last:     make(map[int]core.ChartSeries),
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Export immediately on startup
	p.poll(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll exports every year that differs from what was last exported. Years
// that disappeared from storage are exported once more as zeros.
func (p *ExportProcessor) poll(ctx context.Context) int {
	years, err := p.exporter.totals.AvailableYears(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load available years", "error", err)
		return 0
	}
	for y := range p.last {
		years = append(years, y)
	}

	series, err := p.exporter.Series(ctx, years)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to compute series", "error", err)
		return 0
	}

	exported := 0
	for _, s := range series {
		if prev, ok := p.last[s.Year]; ok && prev == s {
			continue
		}
		if err := p.exporter.export(ctx, s); err != nil {
			p.logger.WarnContext(ctx, "Series export failed, will retry", "year", s.Year, "error", err)
			continue
		}
		exported++
		p.last[s.Year] = s
	}

	if exported > 0 {
		p.logger.InfoContext(ctx, "Exported changed years", "count", exported)
	}
	return exported
}
