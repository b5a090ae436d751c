package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"bauchermatch/internal/bridge/memory"
	"bauchermatch/internal/core"
)

// failingStore returns err from every call.
type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) ListAll(context.Context) ([]core.ProcessedStatement, error) { return nil, f.err }
func (f failingStore) Add(context.Context, core.ProcessedStatement) (core.ProcessedStatement, error) {
	return core.ProcessedStatement{}, f.err
}
func (f failingStore) Replace(context.Context, core.ProcessedStatement) (core.ProcessedStatement, int, error) {
	return core.ProcessedStatement{}, 0, f.err
}
func (f failingStore) ListByYear(context.Context, int) ([]core.ProcessedStatement, error) {
	return nil, f.err
}
func (f failingStore) MonthlyTotals(context.Context) ([]core.MonthlyTotal, error) { return nil, f.err }
func (f failingStore) AvailableYears(context.Context) ([]int, error)             { return nil, f.err }
func (f failingStore) DeleteByID(context.Context, int64) error                   { return f.err }
func (f failingStore) ClearAll(context.Context) error                            { return f.err }

func TestBridgeReportsFailureAsEmpty(t *testing.T) {
	b := NewBridge(failingStore{Store: memory.New(), err: errors.New("disk I/O error")}, time.Second, nil)
	ctx := context.Background()

	if out, ok := b.ListAll(ctx); ok || out != nil {
		t.Fatalf("ListAll: got %v, %v", out, ok)
	}
	if _, ok := b.Add(ctx, core.ProcessedStatement{Filename: "a", Month: core.Mar, Year: 2024}); ok {
		t.Fatal("Add should report failure")
	}
	if _, n, ok := b.Replace(ctx, core.ProcessedStatement{Filename: "a", Month: core.Mar, Year: 2024}); ok || n != 0 {
		t.Fatal("Replace should report failure")
	}
	if _, ok := b.ListByYear(ctx, 2024); ok {
		t.Fatal("ListByYear should report failure")
	}
	if _, ok := b.MonthlyTotals(ctx); ok {
		t.Fatal("MonthlyTotals should report failure")
	}
	if _, ok := b.AvailableYears(ctx); ok {
		t.Fatal("AvailableYears should report failure")
	}
	if b.DeleteByID(ctx, 1) {
		t.Fatal("DeleteByID should return false")
	}
	if b.ClearAll(ctx) {
		t.Fatal("ClearAll should return false")
	}
}

func TestBridgePassesThrough(t *testing.T) {
	b := NewBridge(memory.New(), 0, nil)
	ctx := context.Background()

	saved, ok := b.Add(ctx, core.ProcessedStatement{Filename: "a.csv", Month: core.Mar, Year: 2024, Ingreso: 10})
	if !ok || saved.ID != 1 {
		t.Fatalf("Add: %+v ok=%v", saved, ok)
	}
	totals, ok := b.MonthlyTotals(ctx)
	if !ok || len(totals) != 1 || totals[0].Ingreso != 10 {
		t.Fatalf("MonthlyTotals: %+v ok=%v", totals, ok)
	}
	if !b.DeleteByID(ctx, saved.ID) || !b.ClearAll(ctx) {
		t.Fatal("expected delete and clear to succeed")
	}
	if b.Path() != ":memory:" {
		t.Fatalf("unexpected path %q", b.Path())
	}
}
