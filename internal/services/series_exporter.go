package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"bauchermatch/internal/bridge"
	"bauchermatch/internal/core"
	"bauchermatch/internal/dashboard"
	"bauchermatch/internal/sheets"
)

// SeriesExporter recomputes yearly income series from storage and writes
// them to a spreadsheet.
type SeriesExporter struct {
	totals bridge.TotalsReader
	writer sheets.SeriesWriter
	reader sheets.SeriesReader
	logger *slog.Logger
}

// NewSeriesExporter creates an exporter. When writer also implements
// sheets.SeriesReader, years whose exported values already match are skipped.
func NewSeriesExporter(totals bridge.TotalsReader, writer sheets.SeriesWriter, logger *slog.Logger) *SeriesExporter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &SeriesExporter{totals: totals, writer: writer, logger: logger}
	if r, ok := writer.(sheets.SeriesReader); ok {
		e.reader = r
	}
	return e
}

// Series returns the reconciled series of every year in years, computed
// from a single totals query.
func (e *SeriesExporter) Series(ctx context.Context, years []int) ([]core.ChartSeries, error) {
	totals, err := e.totals.MonthlyTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load monthly totals: %w", err)
	}
	out := make([]core.ChartSeries, 0, len(years))
	for _, y := range uniqueYears(years) {
		out = append(out, dashboard.Reconcile(y, totals))
	}
	return out, nil
}

// ExportYears writes the series of each year. A year with no stored
// statements is written as twelve zeros. Every year is attempted; the
// failures are joined.
func (e *SeriesExporter) ExportYears(ctx context.Context, years []int) error {
	series, err := e.Series(ctx, years)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range series {
		if err := e.export(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ExportAll writes the series of every persisted year.
func (e *SeriesExporter) ExportAll(ctx context.Context) error {
	years, err := e.totals.AvailableYears(ctx)
	if err != nil {
		return fmt.Errorf("load available years: %w", err)
	}
	if len(years) == 0 {
		e.logger.InfoContext(ctx, "No statements stored, nothing to export")
		return nil
	}
	return e.ExportYears(ctx, years)
}

func (e *SeriesExporter) export(ctx context.Context, s core.ChartSeries) error {
	if e.reader != nil {
		current, ok, err := e.reader.ReadYearSeries(ctx, s.Year)
		if err != nil {
			e.logger.WarnContext(ctx, "Could not read exported series, writing anyway",
				"year", s.Year, "error", err)
		} else if ok && current == s {
			e.logger.DebugContext(ctx, "Exported series unchanged", "year", s.Year)
			return nil
		}
	}

	if err := e.writer.WriteYearSeries(ctx, s); err != nil {
		return fmt.Errorf("export year %d: %w", s.Year, err)
	}
	return nil
}

func uniqueYears(years []int) []int {
	seen := make(map[int]bool, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if !core.ValidYear(y) || seen[y] {
			continue
		}
		seen[y] = true
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}
