package memory

import (
	"context"
	"sort"
	"sync"

	"bauchermatch/internal/bridge"
	"bauchermatch/internal/core"
)

var _ bridge.Store = (*Store)(nil)

// Store keeps statements in process memory. IDs are assigned sequentially.
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  []core.ProcessedStatement
}

func New(seed ...core.ProcessedStatement) *Store {
	s := &Store{}
	for _, st := range seed {
		st.ID = 0
		_, _ = s.Add(context.Background(), st)
	}
	return s
}

// Add stores the statement and assigns it an ID.
func (s *Store) Add(_ context.Context, st core.ProcessedStatement) (core.ProcessedStatement, error) {
	if st.ID != 0 {
		return core.ProcessedStatement{}, core.ErrStatementNotNew
	}
	if err := st.Validate(); err != nil {
		return core.ProcessedStatement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	st.ID = s.nextID
	s.items = append(s.items, st)
	return st, nil
}

// Replace removes the statements sharing the key of st and adds st under one
// lock.
func (s *Store) Replace(_ context.Context, st core.ProcessedStatement) (core.ProcessedStatement, int, error) {
	if st.ID != 0 {
		return core.ProcessedStatement{}, 0, core.ErrStatementNotNew
	}
	if err := st.Validate(); err != nil {
		return core.ProcessedStatement{}, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := st.Key()
	kept := s.items[:0]
	removed := 0
	for _, it := range s.items {
		if it.Key() == key {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	s.nextID++
	st.ID = s.nextID
	s.items = append(s.items, st)
	return st, removed, nil
}

// ListAll returns statements ordered by year desc, id desc.
func (s *Store) ListAll(_ context.Context) ([]core.ProcessedStatement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.ProcessedStatement(nil), s.items...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListByYear returns the statements of one year, newest first.
func (s *Store) ListByYear(_ context.Context, year int) ([]core.ProcessedStatement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ProcessedStatement
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Year == year {
			out = append(out, s.items[i])
		}
	}
	return out, nil
}

func (s *Store) FindByKey(_ context.Context, key core.StatementKey) ([]core.ProcessedStatement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ProcessedStatement
	for _, st := range s.items {
		if st.Key() == key {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) MonthlyTotals(_ context.Context) ([]core.MonthlyTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		year  int
		month core.Month
	}
	sums := map[key]*core.MonthlyTotal{}
	for _, st := range s.items {
		k := key{st.Year, st.Month}
		t, ok := sums[k]
		if !ok {
			t = &core.MonthlyTotal{Month: st.Month, Year: st.Year}
			sums[k] = t
		}
		t.Ingreso += st.Ingreso
		t.TotalCount += st.TotalCount
	}
	out := make([]core.MonthlyTotal, 0, len(sums))
	for _, t := range sums {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month.Number() < out[j].Month.Number()
	})
	return out, nil
}

func (s *Store) AvailableYears(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int]struct{}{}
	var years []int
	for _, st := range s.items {
		if _, ok := seen[st.Year]; ok {
			continue
		}
		seen[st.Year] = struct{}{}
		years = append(years, st.Year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

// DeleteByID removes a statement. Deleting an unknown id is not an error,
// matching the SQLite store.
func (s *Store) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, st := range s.items {
		if st.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

func (s *Store) Path() string { return ":memory:" }

func (s *Store) Close() error { return nil }
