package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"bauchermatch/internal/adapters"
	"bauchermatch/internal/amqp"
	"bauchermatch/internal/bridge"
	"bauchermatch/internal/cache"
	"bauchermatch/internal/config"
	"bauchermatch/internal/core"
	"bauchermatch/internal/dashboard"
	"bauchermatch/internal/pipeline"
)

// Publisher sends statement events to the export worker.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.StatementEvent) error
}

var _ Publisher = (*amqp.Client)(nil)

// Outcome is what one processed upload produced.
type Outcome struct {
	Result    core.UploadResult       `json:"result"`
	Statement core.ProcessedStatement `json:"statement"`
	Persisted bool                    `json:"persisted"`
	Replaced  int                     `json:"replaced,omitempty"`
	Message   string                  `json:"message"`
}

type Options struct {
	DuplicatePolicy string
	StorageTimeout  time.Duration
	// StatementCache, when set, holds statement listings until the next
	// write.
	StatementCache cache.Cache[[]core.ProcessedStatement]
	Now            func() time.Time
	Logger         *slog.Logger
}

type flow struct {
	mu sync.Mutex
	p  *pipeline.Pipeline
}

// StatementService runs uploads through their pipeline, stores the result,
// keeps the dashboard view current and announces changes.
type StatementService struct {
	store     bridge.Store
	bridge    *adapters.Bridge
	view      *dashboard.View
	publisher Publisher
	listings  cache.Cache[[]core.ProcessedStatement]
	flows     map[core.Variant]*flow
	policy    string
	now       func() time.Time
	logger    *slog.Logger
}

// NewStatementService wires one pipeline per variant. publisher may be nil.
func NewStatementService(store bridge.Store, pipelines []*pipeline.Pipeline, view *dashboard.View, publisher Publisher, opts Options) *StatementService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = config.DuplicateKeep
	}
	if view == nil {
		view = dashboard.NewView(opts.Now)
	}

	flows := make(map[core.Variant]*flow, len(pipelines))
	for _, p := range pipelines {
		flows[p.Variant()] = &flow{p: p}
	}

	s := &StatementService{
		store:     store,
		bridge:    adapters.NewBridge(store, opts.StorageTimeout, opts.Logger),
		view:      view,
		publisher: publisher,
		listings:  opts.StatementCache,
		flows:     flows,
		policy:    opts.DuplicatePolicy,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if s.policy == config.DuplicateReject {
		for _, f := range flows {
			f.p.SetAccept(s.rejectDuplicate)
		}
	}
	return s
}

// Init loads persisted totals into the dashboard view.
func (s *StatementService) Init(ctx context.Context) {
	if !s.view.Refresh(ctx, s.bridge) {
		s.logger.WarnContext(ctx, "Dashboard view starts empty, storage unavailable")
	}
}

// Variants lists the upload flows the service accepts.
func (s *StatementService) Variants() []core.Variant {
	out := make([]core.Variant, 0, len(s.flows))
	for _, v := range []core.Variant{core.VariantFull, core.VariantFullJSON, core.VariantPartial} {
		if _, ok := s.flows[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Process uploads src through the pipeline of variant and records the
// result. A storage failure is logged and reported through
// Outcome.Persisted; it never fails the upload. Under the reject policy a
// repeated statement fails the cycle with core.ErrDuplicate before the
// extracted file is saved. Under the upsert policy the earlier rows are
// replaced atomically.
func (s *StatementService) Process(ctx context.Context, src pipeline.Source, variant core.Variant) (Outcome, error) {
	f, ok := s.flows[variant]
	if !ok {
		return Outcome{}, core.ErrInvalidVariant
	}
	if !f.mu.TryLock() {
		return Outcome{}, core.ErrBusy
	}
	defer f.mu.Unlock()

	if err := f.p.SelectFile(src); err != nil {
		return Outcome{}, err
	}
	res, err := f.p.Submit(ctx)
	if errors.Is(err, core.ErrDuplicate) {
		return Outcome{Message: core.UserMessage(err)}, err
	}
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Result: res, Message: f.p.Message()}
	stmt := core.NewStatement(res, s.now())

	var saved core.ProcessedStatement
	if s.policy == config.DuplicateUpsert {
		saved, out.Replaced, out.Persisted = s.bridge.Replace(ctx, stmt)
	} else {
		saved, out.Persisted = s.bridge.Add(ctx, stmt)
	}
	s.invalidate()
	if out.Persisted {
		out.Statement = saved
	} else {
		out.Statement = stmt
	}

	switch {
	case out.Replaced > 0:
		if !s.view.Refresh(ctx, s.bridge) {
			s.view.Merge(res)
		}
	case out.Persisted || s.policy != config.DuplicateUpsert:
		// A failed replace left the earlier rows in place.
		s.view.Merge(res)
	}

	if out.Persisted {
		s.publish(ctx, amqp.NewStatementProcessed(saved))
	}

	s.logger.InfoContext(ctx, "Statement processed",
		"id", out.Statement.ID,
		"filename", res.Filename,
		"month", res.Month,
		"year", res.Year,
		"persisted", out.Persisted,
		"replaced", out.Replaced)

	return out, nil
}

// rejectDuplicate fails a decoded result whose (filename, month, year) is
// already stored. A failed lookup lets the upload through.
func (s *StatementService) rejectDuplicate(ctx context.Context, res core.UploadResult) error {
	stmt := core.NewStatement(res, s.now())
	existing, err := s.store.FindByKey(ctx, stmt.Key())
	if err != nil {
		s.logger.WarnContext(ctx, "Duplicate check failed, storing anyway",
			"error", &core.PersistenceError{Op: "find_by_key", Err: err})
		return nil
	}
	if len(existing) == 0 {
		return nil
	}
	s.logger.InfoContext(ctx, "Rejected duplicate statement",
		"filename", stmt.Filename, "month", stmt.Month, "year", stmt.Year)
	return core.ErrDuplicate
}

// Delete removes one statement and reports whether it succeeded.
func (s *StatementService) Delete(ctx context.Context, id int64) bool {
	year := 0
	if all, ok := s.bridge.ListAll(ctx); ok {
		for _, st := range all {
			if st.ID == id {
				year = st.Year
				break
			}
		}
	}

	if !s.bridge.DeleteByID(ctx, id) {
		return false
	}
	s.invalidate()
	s.view.Refresh(ctx, s.bridge)
	if year != 0 {
		s.publish(ctx, amqp.NewStatementDeleted(id, year))
	}
	return true
}

// Clear removes every statement and reports whether it succeeded.
func (s *StatementService) Clear(ctx context.Context) bool {
	years, _ := s.bridge.AvailableYears(ctx)
	if !s.bridge.ClearAll(ctx) {
		return false
	}
	s.invalidate()
	s.view.Load(nil, nil)
	if len(years) > 0 {
		s.publish(ctx, amqp.NewStatementsCleared(years))
	}
	return true
}

// Dashboard refreshes the view from storage and returns the snapshot for
// year (zero selects the default year). A failed refresh serves the cached
// view.
func (s *StatementService) Dashboard(ctx context.Context, year int) dashboard.Snapshot {
	if !s.view.Refresh(ctx, s.bridge) {
		s.logger.WarnContext(ctx, "Serving cached dashboard view")
	}
	return s.view.Snapshot(year)
}

// Statements lists stored statements, optionally for one year. Failed
// reads are never cached.
func (s *StatementService) Statements(ctx context.Context, year int) ([]core.ProcessedStatement, bool) {
	key := "all"
	if year != 0 {
		key = strconv.Itoa(year)
	}
	if s.listings != nil {
		if cached, ok := s.listings.Get(key); ok {
			return append([]core.ProcessedStatement(nil), cached...), true
		}
	}

	var (
		list []core.ProcessedStatement
		ok   bool
	)
	if year == 0 {
		list, ok = s.bridge.ListAll(ctx)
	} else {
		list, ok = s.bridge.ListByYear(ctx, year)
	}
	if ok && s.listings != nil {
		s.listings.Set(key, append([]core.ProcessedStatement(nil), list...))
	}
	return list, ok
}

func (s *StatementService) invalidate() {
	if s.listings != nil {
		s.listings.Purge()
	}
}

func (s *StatementService) MonthlyTotals(ctx context.Context) ([]core.MonthlyTotal, bool) {
	return s.bridge.MonthlyTotals(ctx)
}

// DatabasePath returns where statements are stored.
func (s *StatementService) DatabasePath() string {
	return s.bridge.Path()
}

// PipelineStatus describes one upload flow.
type PipelineStatus struct {
	Variant core.Variant   `json:"variant"`
	State   pipeline.State `json:"state"`
	Message string         `json:"message"`
}

func (s *StatementService) Pipelines() []PipelineStatus {
	var out []PipelineStatus
	for _, v := range s.Variants() {
		p := s.flows[v].p
		out = append(out, PipelineStatus{Variant: v, State: p.State(), Message: p.Message()})
	}
	return out
}

func (s *StatementService) publish(ctx context.Context, ev *amqp.StatementEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping event", "type", ev.Type)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish statement event",
			"type", ev.Type, "id", ev.ID, "error", err)
	}
}

// Close closes storage and the publisher.
func (s *StatementService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statement service: %w", errors.Join(errs...))
	}

	return nil
}
