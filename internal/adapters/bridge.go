package adapters

import (
	"context"
	"log/slog"
	"time"

	"bauchermatch/internal/bridge"
	"bauchermatch/internal/core"
)

// Bridge adapts a bridge.Store to the front-end persistence contract: every
// failure is logged as a PersistenceError and reported as an empty result or
// false, never as a fault. Callers that must tell "failed" from "no data"
// use the ok flags or talk to the Store directly.
type Bridge struct {
	store   bridge.Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewBridge(store bridge.Store, timeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{store: store, timeout: timeout, logger: logger}
}

// Store returns the underlying store.
func (b *Bridge) Store() bridge.Store {
	return b.store
}

func (b *Bridge) fail(ctx context.Context, op string, err error) {
	perr := &core.PersistenceError{Op: op, Err: err}
	b.logger.WarnContext(ctx, "Storage operation failed", "operation", op, "error", perr)
}

// ListAll returns all statements, or nil on failure.
func (b *Bridge) ListAll(ctx context.Context) ([]core.ProcessedStatement, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.store.ListAll(ctx)
	if err != nil {
		b.fail(ctx, "list_all", err)
		return nil, false
	}
	return out, true
}

// Add persists s. ok is false when the statement was not stored.
func (b *Bridge) Add(ctx context.Context, s core.ProcessedStatement) (core.ProcessedStatement, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	saved, err := b.store.Add(ctx, s)
	if err != nil {
		b.fail(ctx, "add", err)
		return core.ProcessedStatement{}, false
	}
	return saved, true
}

// Replace stores s in place of the statements sharing its key. ok is false
// when nothing changed.
func (b *Bridge) Replace(ctx context.Context, s core.ProcessedStatement) (core.ProcessedStatement, int, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	saved, removed, err := b.store.Replace(ctx, s)
	if err != nil {
		b.fail(ctx, "replace", err)
		return core.ProcessedStatement{}, 0, false
	}
	return saved, removed, true
}

func (b *Bridge) ListByYear(ctx context.Context, year int) ([]core.ProcessedStatement, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.store.ListByYear(ctx, year)
	if err != nil {
		b.fail(ctx, "list_by_year", err)
		return nil, false
	}
	return out, true
}

func (b *Bridge) MonthlyTotals(ctx context.Context) ([]core.MonthlyTotal, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.store.MonthlyTotals(ctx)
	if err != nil {
		b.fail(ctx, "monthly_totals", err)
		return nil, false
	}
	return out, true
}

func (b *Bridge) AvailableYears(ctx context.Context) ([]int, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.store.AvailableYears(ctx)
	if err != nil {
		b.fail(ctx, "available_years", err)
		return nil, false
	}
	return out, true
}

// DeleteByID reports whether the delete succeeded.
func (b *Bridge) DeleteByID(ctx context.Context, id int64) bool {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.store.DeleteByID(ctx, id); err != nil {
		b.fail(ctx, "delete", err)
		return false
	}
	return true
}

// ClearAll reports whether every statement was removed.
func (b *Bridge) ClearAll(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.store.ClearAll(ctx); err != nil {
		b.fail(ctx, "clear_all", err)
		return false
	}
	return true
}

// Path returns the storage location.
func (b *Bridge) Path() string {
	return b.store.Path()
}
