package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bauchermatch/internal/bridge/memory"
	"bauchermatch/internal/core"
)

// recordingWriter keeps the last series written per year.
type recordingWriter struct {
	mu      sync.Mutex
	written map[int]core.ChartSeries
	writes  int
	err     error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{written: make(map[int]core.ChartSeries)}
}

func (w *recordingWriter) WriteYearSeries(ctx context.Context, s core.ChartSeries) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes++
	w.written[s.Year] = s
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// readingWriter also reads back what it wrote.
type readingWriter struct {
	*recordingWriter
}

func (w readingWriter) ReadYearSeries(ctx context.Context, year int) (core.ChartSeries, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.written[year]
	return s, ok, nil
}

func stmt(m core.Month, year int, ingreso float64) core.ProcessedStatement {
	return core.ProcessedStatement{Filename: "s.csv", Month: m, Year: year, Ingreso: ingreso, ProcessedAt: "2025-01-01T00:00:00Z"}
}

func TestExportYears(t *testing.T) {
	store := memory.New(stmt(core.Ene, 2024, 10), stmt(core.Ene, 2024, 5), stmt(core.Mar, 2023, 7))
	w := newRecordingWriter()
	e := NewSeriesExporter(store, w, nil)

	if err := e.ExportYears(context.Background(), []int{2024, 2024, 2022, 0}); err != nil {
		t.Fatalf("ExportYears: %v", err)
	}
	if w.writes != 2 {
		t.Fatalf("writes = %d, want 2", w.writes)
	}
	if v := w.written[2024].At(core.Ene); v != 15 {
		t.Errorf("2024 Ene = %v, want 15", v)
	}
	if v := w.written[2022].Total(); v != 0 {
		t.Errorf("2022 should be exported as zeros, total %v", v)
	}
}

func TestExportAll(t *testing.T) {
	store := memory.New(stmt(core.Ene, 2024, 10), stmt(core.Mar, 2023, 7))
	w := newRecordingWriter()
	e := NewSeriesExporter(store, w, nil)

	if err := e.ExportAll(context.Background()); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(w.written) != 2 {
		t.Errorf("exported years = %d, want 2", len(w.written))
	}

	empty := newRecordingWriter()
	if err := NewSeriesExporter(memory.New(), empty, nil).ExportAll(context.Background()); err != nil {
		t.Fatalf("ExportAll on empty store: %v", err)
	}
	if empty.writes != 0 {
		t.Errorf("empty store wrote %d series", empty.writes)
	}
}

func TestExportSkipsUnchanged(t *testing.T) {
	store := memory.New(stmt(core.Ene, 2024, 10))
	w := readingWriter{newRecordingWriter()}
	e := NewSeriesExporter(store, w, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := e.ExportYears(ctx, []int{2024}); err != nil {
			t.Fatalf("ExportYears: %v", err)
		}
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want 1", w.writes)
	}
}

func TestExportYearsJoinsErrors(t *testing.T) {
	w := newRecordingWriter()
	boom := errors.New("quota exceeded")
	w.err = boom
	e := NewSeriesExporter(memory.New(), w, nil)

	err := e.ExportYears(context.Background(), []int{2023, 2024})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestDefaultExportProcessorConfig(t *testing.T) {
	config := DefaultExportProcessorConfig()
	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}

	p := NewExportProcessor(nil, ExportProcessorConfig{})
	if p.config.PollInterval != 30*time.Second {
		t.Errorf("zero PollInterval should default, got %v", p.config.PollInterval)
	}
}

func TestExportProcessorPoll(t *testing.T) {
	store := memory.New(stmt(core.Ene, 2024, 10))
	w := newRecordingWriter()
	p := NewExportProcessor(NewSeriesExporter(store, w, nil), DefaultExportProcessorConfig())
	ctx := context.Background()

	if n := p.poll(ctx); n != 1 {
		t.Fatalf("first poll exported %d, want 1", n)
	}
	if n := p.poll(ctx); n != 0 {
		t.Errorf("unchanged poll exported %d, want 0", n)
	}

	if _, err := store.Add(ctx, stmt(core.Feb, 2024, 3)); err != nil {
		t.Fatal(err)
	}
	if n := p.poll(ctx); n != 1 {
		t.Errorf("poll after change exported %d, want 1", n)
	}

	// Clearing storage re-exports the year as zeros, once.
	if err := store.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n := p.poll(ctx); n != 1 {
		t.Errorf("poll after clear exported %d, want 1", n)
	}
	if v := w.written[2024].Total(); v != 0 {
		t.Errorf("2024 total after clear = %v", v)
	}
	if n := p.poll(ctx); n != 0 {
		t.Errorf("poll after zero export exported %d, want 0", n)
	}
}

func TestExportProcessorRetriesFailedYear(t *testing.T) {
	store := memory.New(stmt(core.Ene, 2024, 10))
	w := newRecordingWriter()
	w.err = errors.New("unavailable")
	p := NewExportProcessor(NewSeriesExporter(store, w, nil), DefaultExportProcessorConfig())
	ctx := context.Background()

	if n := p.poll(ctx); n != 0 {
		t.Fatalf("failed poll exported %d", n)
	}
	w.err = nil
	if n := p.poll(ctx); n != 1 {
		t.Errorf("retry exported %d, want 1", n)
	}
}

func TestExportProcessorLifecycle(t *testing.T) {
	store := memory.New(stmt(core.Ene, 2024, 10))
	w := newRecordingWriter()
	p := NewExportProcessor(NewSeriesExporter(store, w, nil), ExportProcessorConfig{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.count() == 0 {
		t.Error("startup export did not run")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}
