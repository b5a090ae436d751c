package services

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"bauchermatch/internal/amqp"
	"bauchermatch/internal/bridge"
	"bauchermatch/internal/bridge/memory"
	"bauchermatch/internal/cache"
	"bauchermatch/internal/config"
	"bauchermatch/internal/core"
	"bauchermatch/internal/extraction"
	"bauchermatch/internal/pipeline"
)

var fixedNow = func() time.Time { return time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC) }

func ptr[T any](v T) *T { return &v }

// stubExtractor answers every upload with the same partial CSV.
type stubExtractor struct {
	filename string
	ingreso  float64
	err      error
}

func (s *stubExtractor) Extract(ctx context.Context, v core.Variant, filename string, r io.Reader) (*extraction.Response, error) {
	_, _ = io.Copy(io.Discard, r)
	if s.err != nil {
		return nil, s.err
	}
	return &extraction.Response{
		Body:     []byte("fecha,monto\n01/01/2024,10\n"),
		Filename: s.filename,
		Metadata: extraction.ParsedMetadata{
			ExecutionTime: ptr(1.5),
			TotalCount:    ptr(3),
			IncomeMonth:   ptr(s.ingreso),
		},
	}, nil
}

type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingExtractor) Extract(ctx context.Context, v core.Variant, filename string, r io.Reader) (*extraction.Response, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return &extraction.Response{Body: []byte("ok"), Filename: "MARZO_2024.csv"}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.StatementEvent
	err    error
	closed bool
}

func (f *fakePublisher) Publish(ctx context.Context, ev *amqp.StatementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

// failingAddStore persists nothing.
type failingAddStore struct {
	*memory.Store
}

func (f failingAddStore) Add(context.Context, core.ProcessedStatement) (core.ProcessedStatement, error) {
	return core.ProcessedStatement{}, errors.New("disk full")
}

// failingWriteStore refuses every write, keeping whatever it was seeded with.
type failingWriteStore struct {
	*memory.Store
}

func (f failingWriteStore) Add(context.Context, core.ProcessedStatement) (core.ProcessedStatement, error) {
	return core.ProcessedStatement{}, errors.New("disk full")
}

func (f failingWriteStore) Replace(context.Context, core.ProcessedStatement) (core.ProcessedStatement, int, error) {
	return core.ProcessedStatement{}, 0, errors.New("disk full")
}

func newTestService(t *testing.T, ext pipeline.Extractor, store bridge.Store, policy string, pub Publisher) *StatementService {
	t.Helper()
	p := pipeline.New(ext, nil, pipeline.Options{Variant: core.VariantPartial, Now: fixedNow})
	s := NewStatementService(store, []*pipeline.Pipeline{p}, nil, pub, Options{DuplicatePolicy: policy, Now: fixedNow})
	s.Init(context.Background())
	return s
}

func upload(name string) pipeline.Source {
	return pipeline.BytesSource{Filename: name, Data: []byte("%PDF-1.4 test")}
}

func TestProcessPersistsAndPublishes(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	s := newTestService(t, &stubExtractor{filename: "ENERO_2024.csv", ingreso: 1500.456}, store, config.DuplicateKeep, pub)
	ctx := context.Background()

	out, err := s.Process(ctx, upload("estado ENERO 2024.pdf"), core.VariantPartial)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Persisted || out.Statement.ID == 0 {
		t.Fatalf("expected persisted statement, got %+v", out)
	}
	if out.Statement.Month != core.Ene || out.Statement.Year != 2024 {
		t.Errorf("period = %s %d, want Ene 2024", out.Statement.Month, out.Statement.Year)
	}
	if out.Statement.Ingreso != 1500.46 {
		t.Errorf("ingreso = %v, want 1500.46", out.Statement.Ingreso)
	}
	if out.Message != "Archivo CSV procesado y descargado correctamente en 1.50 segundos." {
		t.Errorf("message = %q", out.Message)
	}

	if len(pub.events) != 1 || pub.events[0].Type != amqp.EventStatementProcessed {
		t.Fatalf("events = %+v", pub.events)
	}
	if got := pub.events[0].Years; len(got) != 1 || got[0] != 2024 {
		t.Errorf("event years = %v", got)
	}

	snap := s.Dashboard(ctx, 2024)
	if v := snap.Series.At(core.Ene); v != 1500.46 {
		t.Errorf("dashboard Ene = %v, want 1500.46", v)
	}
}

func TestProcessDuplicatePolicies(t *testing.T) {
	tests := []struct {
		policy       string
		wantErr      error
		wantRows     int
		wantReplaced int
		wantTotal    float64
	}{
		{policy: config.DuplicateKeep, wantRows: 2, wantTotal: 200},
		{policy: config.DuplicateReject, wantErr: core.ErrDuplicate, wantRows: 1, wantTotal: 100},
		{policy: config.DuplicateUpsert, wantRows: 1, wantReplaced: 1, wantTotal: 100},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			store := memory.New()
			s := newTestService(t, &stubExtractor{filename: "FEBRERO_2024.csv", ingreso: 100}, store, tt.policy, nil)
			ctx := context.Background()

			if _, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial); err != nil {
				t.Fatalf("first Process: %v", err)
			}
			out, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("second Process error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && out.Message != core.UserMessage(tt.wantErr) {
				t.Errorf("message = %q", out.Message)
			}
			if out.Replaced != tt.wantReplaced {
				t.Errorf("replaced = %d, want %d", out.Replaced, tt.wantReplaced)
			}

			rows, _ := store.ListAll(ctx)
			if len(rows) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(rows), tt.wantRows)
			}
			if v := s.Dashboard(ctx, 2024).Series.At(core.Feb); v != tt.wantTotal {
				t.Errorf("dashboard Feb = %v, want %v", v, tt.wantTotal)
			}
		})
	}
}

func TestProcessUpsertKeepsPriorRowWhenWriteFails(t *testing.T) {
	store := failingWriteStore{memory.New(core.ProcessedStatement{
		Filename: "MARZO_2024.csv", Month: core.Mar, Year: 2024, Ingreso: 100, TotalCount: 1, ProcessedAt: "x",
	})}
	pub := &fakePublisher{}
	s := newTestService(t, &stubExtractor{filename: "MARZO_2024.csv", ingreso: 300}, store, config.DuplicateUpsert, pub)
	ctx := context.Background()

	out, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial)
	if err != nil {
		t.Fatalf("storage failure must not fail the upload: %v", err)
	}
	if out.Persisted || out.Replaced != 0 {
		t.Errorf("persisted = %v, replaced = %d", out.Persisted, out.Replaced)
	}

	rows, _ := store.ListAll(ctx)
	if len(rows) != 1 || rows[0].Ingreso != 100 {
		t.Fatalf("prior row lost: %+v", rows)
	}
	if v := s.Dashboard(ctx, 2024).Series.At(core.Mar); v != 100 {
		t.Errorf("dashboard Mar = %v, want 100", v)
	}
	if len(pub.events) != 0 {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestProcessRejectedDuplicateSavesNothing(t *testing.T) {
	dir := t.TempDir()
	p := pipeline.New(&stubExtractor{filename: "ABRIL_2024.csv", ingreso: 10}, pipeline.DirSaver{Dir: dir},
		pipeline.Options{Variant: core.VariantPartial, Now: fixedNow})
	s := NewStatementService(memory.New(), []*pipeline.Pipeline{p}, nil, nil,
		Options{DuplicatePolicy: config.DuplicateReject, Now: fixedNow})
	ctx := context.Background()
	s.Init(ctx)

	if _, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	out, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial)
	if !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("second Process error = %v, want ErrDuplicate", err)
	}
	if out.Message != core.UserMessage(core.ErrDuplicate) {
		t.Errorf("message = %q", out.Message)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "ABRIL_2024.csv" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("output dir = %v, want only ABRIL_2024.csv", names)
	}
	if st := s.Pipelines(); st[0].State != pipeline.Failed {
		t.Errorf("pipeline state = %v, want failed", st[0].State)
	}
}

func TestProcessUnknownVariant(t *testing.T) {
	s := newTestService(t, &stubExtractor{filename: "x.csv"}, memory.New(), config.DuplicateKeep, nil)
	if _, err := s.Process(context.Background(), upload("a.pdf"), core.VariantFull); !errors.Is(err, core.ErrInvalidVariant) {
		t.Errorf("expected ErrInvalidVariant, got %v", err)
	}
}

func TestProcessBusy(t *testing.T) {
	ext := &blockingExtractor{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestService(t, ext, memory.New(), config.DuplicateKeep, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial)
		done <- err
	}()
	<-ext.started

	if _, err := s.Process(ctx, upload("b.pdf"), core.VariantPartial); !errors.Is(err, core.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(ext.release)
	if err := <-done; err != nil {
		t.Fatalf("first Process: %v", err)
	}
}

func TestProcessUpstreamFailure(t *testing.T) {
	store := memory.New()
	pub := &fakePublisher{}
	ext := &stubExtractor{err: &core.UpstreamError{StatusCode: 500}}
	s := newTestService(t, ext, store, config.DuplicateKeep, pub)

	_, err := s.Process(context.Background(), upload("a.pdf"), core.VariantPartial)
	var ue *core.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if rows, _ := store.ListAll(context.Background()); len(rows) != 0 {
		t.Errorf("nothing should be stored, got %d rows", len(rows))
	}
	if len(pub.events) != 0 {
		t.Errorf("nothing should be published, got %d events", len(pub.events))
	}
	status := s.Pipelines()
	if len(status) != 1 || status[0].State != pipeline.Failed {
		t.Errorf("pipelines = %+v", status)
	}
}

func TestProcessStorageFailureKeepsUpload(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestService(t, &stubExtractor{filename: "MAYO_2024.csv", ingreso: 42}, failingAddStore{memory.New()}, config.DuplicateKeep, pub)

	out, err := s.Process(context.Background(), upload("a.pdf"), core.VariantPartial)
	if err != nil {
		t.Fatalf("storage failure must not fail the upload: %v", err)
	}
	if out.Persisted {
		t.Error("expected Persisted false")
	}
	if len(pub.events) != 0 {
		t.Errorf("unpersisted statement must not be published")
	}
	if v := s.view.Series(2024).At(core.May); v != 42 {
		t.Errorf("view May = %v, want 42", v)
	}
}

func TestProcessPublishFailureIgnored(t *testing.T) {
	pub := &fakePublisher{err: errors.New("circuit breaker is open")}
	s := newTestService(t, &stubExtractor{filename: "JUNIO_2024.csv", ingreso: 5}, memory.New(), config.DuplicateKeep, pub)

	out, err := s.Process(context.Background(), upload("a.pdf"), core.VariantPartial)
	if err != nil || !out.Persisted {
		t.Fatalf("Process = %+v, %v", out, err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	store := memory.New(
		core.ProcessedStatement{Filename: "a.csv", Month: core.Ene, Year: 2023, Ingreso: 10, ProcessedAt: "x"},
		core.ProcessedStatement{Filename: "b.csv", Month: core.Feb, Year: 2024, Ingreso: 20, ProcessedAt: "x"},
	)
	pub := &fakePublisher{}
	s := newTestService(t, &stubExtractor{}, store, config.DuplicateKeep, pub)
	ctx := context.Background()

	if !s.Delete(ctx, 1) {
		t.Fatal("Delete returned false")
	}
	if len(pub.events) != 1 || pub.events[0].Type != amqp.EventStatementDeleted || pub.events[0].Years[0] != 2023 {
		t.Fatalf("events = %+v", pub.events)
	}
	if v := s.Dashboard(ctx, 2023).Series.Total(); v != 0 {
		t.Errorf("2023 total after delete = %v", v)
	}

	if !s.Clear(ctx) {
		t.Fatal("Clear returned false")
	}
	if len(pub.events) != 2 || pub.events[1].Type != amqp.EventStatementsCleared {
		t.Fatalf("events = %+v", pub.events)
	}
	if rows, _ := s.Statements(ctx, 0); len(rows) != 0 {
		t.Errorf("rows after clear = %d", len(rows))
	}
	if totals := s.view.Totals(); len(totals) != 0 {
		t.Errorf("view totals after clear = %v", totals)
	}
}

func TestClose(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestService(t, &stubExtractor{}, memory.New(), config.DuplicateKeep, pub)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.closed {
		t.Error("publisher not closed")
	}
}

func TestStatementsCacheInvalidatedOnWrite(t *testing.T) {
	store := memory.New()
	listings := cache.NewLRUCache[[]core.ProcessedStatement](8, time.Hour)
	p := pipeline.New(&stubExtractor{filename: "ABRIL_2024.csv", ingreso: 1}, nil, pipeline.Options{Now: fixedNow})
	s := NewStatementService(store, []*pipeline.Pipeline{p}, nil, nil, Options{StatementCache: listings, Now: fixedNow})
	ctx := context.Background()

	if rows, ok := s.Statements(ctx, 2024); !ok || len(rows) != 0 {
		t.Fatalf("Statements = %v, %v", rows, ok)
	}
	if listings.Size() != 1 {
		t.Fatalf("listing not cached, size %d", listings.Size())
	}

	if _, err := s.Process(ctx, upload("a.pdf"), core.VariantPartial); err != nil {
		t.Fatal(err)
	}
	if listings.Size() != 0 {
		t.Errorf("cache not purged after upload")
	}
	rows, _ := s.Statements(ctx, 2024)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	// Bypass the service: the cached listing is served until the next write.
	_ = store.ClearAll(ctx)
	if rows, _ := s.Statements(ctx, 2024); len(rows) != 1 {
		t.Errorf("expected cached listing, got %d rows", len(rows))
	}
	if !s.Delete(ctx, 999) {
		t.Fatal("Delete of unknown id should succeed")
	}
	if rows, _ := s.Statements(ctx, 2024); len(rows) != 0 {
		t.Errorf("expected fresh listing after delete, got %d rows", len(rows))
	}
}
