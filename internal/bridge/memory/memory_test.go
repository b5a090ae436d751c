package memory

import (
	"context"
	"errors"
	"testing"

	"bauchermatch/internal/core"
)

func stmt(name string, m core.Month, year int, ingreso float64, count int) core.ProcessedStatement {
	return core.ProcessedStatement{Filename: name, Month: m, Year: year, Ingreso: ingreso, TotalCount: count, ProcessedAt: "2024-01-01T00:00:00Z"}
}

func TestStoreAddAssignsIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.Add(ctx, stmt("a.csv", core.Mar, 2024, 100, 1))
	if err != nil || a.ID != 1 {
		t.Fatalf("unexpected add: %+v err=%v", a, err)
	}
	b, err := s.Add(ctx, stmt("b.csv", core.Abr, 2024, 50, 2))
	if err != nil || b.ID != 2 {
		t.Fatalf("unexpected add: %+v err=%v", b, err)
	}

	if _, err := s.Add(ctx, a); !errors.Is(err, core.ErrStatementNotNew) {
		t.Fatalf("expected ErrStatementNotNew, got %v", err)
	}
	if _, err := s.Add(ctx, stmt("c.csv", "Foo", 2024, 1, 1)); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestStoreOrderingAndAggregation(t *testing.T) {
	s := New(
		stmt("a.csv", core.Mar, 2023, 100, 1),
		stmt("b.csv", core.Mar, 2024, 200, 2),
		stmt("c.csv", core.Ene, 2024, 10, 3),
		stmt("d.csv", core.Mar, 2024, 300, 4),
	)
	ctx := context.Background()

	all, _ := s.ListAll(ctx)
	wantIDs := []int64{4, 3, 2, 1}
	for i, st := range all {
		if st.ID != wantIDs[i] {
			t.Fatalf("ListAll order: got ids %v", all)
		}
	}

	byYear, _ := s.ListByYear(ctx, 2024)
	if len(byYear) != 3 || byYear[0].ID != 4 {
		t.Fatalf("unexpected ListByYear: %+v", byYear)
	}

	totals, _ := s.MonthlyTotals(ctx)
	want := []core.MonthlyTotal{
		{Month: core.Mar, Year: 2023, Ingreso: 100, TotalCount: 1},
		{Month: core.Ene, Year: 2024, Ingreso: 10, TotalCount: 3},
		{Month: core.Mar, Year: 2024, Ingreso: 500, TotalCount: 6},
	}
	if len(totals) != len(want) {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	for i := range want {
		if totals[i] != want[i] {
			t.Fatalf("totals[%d] = %+v, want %+v", i, totals[i], want[i])
		}
	}

	years, _ := s.AvailableYears(ctx)
	if len(years) != 2 || years[0] != 2024 || years[1] != 2023 {
		t.Fatalf("unexpected years: %v", years)
	}

	dups, _ := s.FindByKey(ctx, core.StatementKey{Filename: "b.csv", Month: core.Mar, Year: 2024})
	if len(dups) != 1 || dups[0].ID != 2 {
		t.Fatalf("unexpected FindByKey: %+v", dups)
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	s := New(stmt("a.csv", core.Mar, 2024, 1, 1), stmt("b.csv", core.Abr, 2024, 1, 1))
	ctx := context.Background()

	if err := s.DeleteByID(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteByID(ctx, 99); err != nil {
		t.Fatalf("delete unknown id should not fail: %v", err)
	}
	all, _ := s.ListAll(ctx)
	if len(all) != 1 || all[0].ID != 2 {
		t.Fatalf("unexpected after delete: %+v", all)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, _ = s.ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %+v", all)
	}
}

func TestStoreReplace(t *testing.T) {
	s := New(stmt("a.csv", core.Mar, 2024, 10, 1), stmt("a.csv", core.Mar, 2024, 20, 1), stmt("a.csv", core.Abr, 2024, 5, 1))
	ctx := context.Background()

	saved, removed, err := s.Replace(ctx, stmt("a.csv", core.Mar, 2024, 30, 2))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if removed != 2 || saved.ID != 4 {
		t.Fatalf("removed = %d, saved = %+v", removed, saved)
	}
	totals, _ := s.MonthlyTotals(ctx)
	if len(totals) != 2 || totals[0].Ingreso != 30 || totals[1].Ingreso != 5 {
		t.Errorf("totals after replace = %+v", totals)
	}

	if _, _, err := s.Replace(ctx, stmt("a.csv", "March", 2024, 1, 1)); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if rows, _ := s.FindByKey(ctx, saved.Key()); len(rows) != 1 || rows[0].ID != saved.ID {
		t.Errorf("invalid replace changed the store: %+v", rows)
	}
}
