package bridge

import (
	"context"

	"bauchermatch/internal/core"
)

// Ports for the persistence side of the app.
type (
	// StatementWriter persists processed statements.
	StatementWriter interface {
		// Add stores s and returns it with its assigned ID.
		Add(ctx context.Context, s core.ProcessedStatement) (core.ProcessedStatement, error)
		// Replace atomically removes the statements sharing the key of s and
		// stores s. It returns the stored statement and how many rows it
		// removed; on error the store is unchanged.
		Replace(ctx context.Context, s core.ProcessedStatement) (core.ProcessedStatement, int, error)
		DeleteByID(ctx context.Context, id int64) error
		ClearAll(ctx context.Context) error
	}

	// StatementReader lists persisted statements.
	StatementReader interface {
		ListAll(ctx context.Context) ([]core.ProcessedStatement, error)
		ListByYear(ctx context.Context, year int) ([]core.ProcessedStatement, error)
		// FindByKey returns the statements sharing the (filename, month, year) key.
		FindByKey(ctx context.Context, key core.StatementKey) ([]core.ProcessedStatement, error)
	}

	// TotalsReader provides the aggregations the dashboard needs.
	TotalsReader interface {
		// MonthlyTotals returns one row per (month, year), ordered by year then month.
		MonthlyTotals(ctx context.Context) ([]core.MonthlyTotal, error)
		// AvailableYears returns the distinct persisted years, most recent first.
		AvailableYears(ctx context.Context) ([]int, error)
	}

	// Store is the full StorageBridge surface.
	Store interface {
		StatementWriter
		StatementReader
		TotalsReader
		// Path describes where data lives (a file path, or a label for memory).
		Path() string
		Close() error
	}
)
