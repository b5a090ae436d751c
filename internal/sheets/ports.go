package sheets

import (
	"context"

	"bauchermatch/internal/core"
)

// Ports for outbound adapters.
type (
	// SeriesWriter publishes a yearly income series to a spreadsheet.
	SeriesWriter interface {
		WriteYearSeries(ctx context.Context, series core.ChartSeries) error
	}

	// SeriesReader reads back what was last exported for a year. ok is false
	// when the year has never been exported.
	SeriesReader interface {
		ReadYearSeries(ctx context.Context, year int) (series core.ChartSeries, ok bool, err error)
	}
)
