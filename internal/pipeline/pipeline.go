// Package pipeline drives one upload-and-decode cycle at a time against the
// extraction service.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"bauchermatch/internal/core"
	"bauchermatch/internal/extraction"
)

// Extractor is the outbound port to the extraction service.
type Extractor interface {
	Extract(ctx context.Context, v core.Variant, filename string, r io.Reader) (*extraction.Response, error)
}

var _ Extractor = (*extraction.Client)(nil)

type Options struct {
	Variant core.Variant
	// Preflight, when set, inspects the PDF before it is sent. An error
	// it returns is a guard failure and leaves the state untouched.
	Preflight func(io.ReadSeeker) error
	Now       func() time.Time
	Logger    *slog.Logger
}

// Pipeline is the upload state machine. It is safe for concurrent use, but
// at most one Submit runs at a time; others get core.ErrBusy.
type Pipeline struct {
	extractor Extractor
	saver     Saver
	variant   core.Variant
	preflight func(io.ReadSeeker) error
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	accept  func(context.Context, core.UploadResult) error
	state   State
	source  Source
	result  *core.UploadResult
	lastErr error
	message string
}

func New(extractor Extractor, saver Saver, opts Options) *Pipeline {
	if !opts.Variant.IsValid() {
		opts.Variant = core.VariantPartial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		saver:     saver,
		variant:   opts.Variant,
		preflight: opts.Preflight,
		now:       opts.Now,
		logger:    opts.Logger.With("variant", opts.Variant.String()),
	}
}

func (p *Pipeline) Variant() core.Variant { return p.variant }

// SetAccept installs a check run on every decoded result before the
// extracted file is saved. An error it returns fails the cycle and nothing
// is written.
func (p *Pipeline) SetAccept(fn func(context.Context, core.UploadResult) error) {
	p.mu.Lock()
	p.accept = fn
	p.mu.Unlock()
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SelectFile stores src as the next file to submit and clears the previous
// status message. It fails with core.ErrBusy while a submission runs.
func (p *Pipeline) SelectFile(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.InFlight() {
		return core.ErrBusy
	}
	p.source = src
	p.message = ""
	p.lastErr = nil
	return nil
}

// Reset returns the pipeline to Idle and forgets the selection and the last
// outcome.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.InFlight() {
		return core.ErrBusy
	}
	p.state = Idle
	p.source = nil
	p.result = nil
	p.lastErr = nil
	p.message = ""
	return nil
}

// Result returns the last UploadResult when the pipeline is in Success.
func (p *Pipeline) Result() (core.UploadResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Success || p.result == nil {
		return core.UploadResult{}, false
	}
	return *p.result, true
}

// ErrorMessage returns the user-facing description of the last failure,
// or "".
func (p *Pipeline) ErrorMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return core.UserMessage(p.lastErr)
}

// Message returns the current status line, success or failure.
func (p *Pipeline) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// Err returns the last failure, or nil.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Submit sends the selected file and decodes the response. Guard failures
// (nothing selected, preflight rejection) and core.ErrBusy leave the state
// as it was; every other failure ends the cycle in Failed.
func (p *Pipeline) Submit(ctx context.Context) (core.UploadResult, error) {
	p.mu.Lock()
	if p.state.InFlight() {
		p.mu.Unlock()
		return core.UploadResult{}, core.ErrBusy
	}
	if p.source == nil {
		p.lastErr = core.ErrNoFileSelected
		p.message = core.UserMessage(core.ErrNoFileSelected)
		p.mu.Unlock()
		return core.UploadResult{}, core.ErrNoFileSelected
	}
	src := p.source
	accept := p.accept
	prev := p.state
	p.state = Uploading
	p.result = nil
	p.lastErr = nil
	p.message = ""
	p.mu.Unlock()

	data, err := p.load(src)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			p.mu.Lock()
			p.state = prev
			p.lastErr = err
			p.message = core.UserMessage(err)
			p.mu.Unlock()
			p.logger.WarnContext(ctx, "Upload rejected before sending", "filename", src.Name(), "error", err)
			return core.UploadResult{}, err
		}
		return core.UploadResult{}, p.fail(ctx, src, err)
	}

	res, err := p.run(ctx, src, data, accept)
	if err != nil {
		return core.UploadResult{}, p.fail(ctx, src, err)
	}

	p.mu.Lock()
	p.state = Success
	p.result = &res
	p.message = core.SuccessMessage(res)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Upload completed",
		"filename", res.Filename,
		"month", res.Month,
		"year", res.Year,
		"ingreso", res.Ingreso,
		"total_count", res.TotalCount,
		"month_inferred", res.MonthInferred)

	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, src Source, err error) error {
	p.mu.Lock()
	p.state = Failed
	p.lastErr = err
	p.message = core.UserMessage(err)
	p.mu.Unlock()
	p.logger.WarnContext(ctx, "Upload failed", "filename", src.Name(), "error", err)
	return err
}

// load reads the selected file and runs preflight.
func (p *Pipeline) load(src Source) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}

	if p.preflight != nil {
		if err := p.preflight(bytes.NewReader(data)); err != nil {
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				err = &core.ValidationError{Reason: "preflight", Err: err}
			}
			return nil, err
		}
	}
	return data, nil
}

func (p *Pipeline) run(ctx context.Context, src Source, data []byte, accept func(context.Context, core.UploadResult) error) (core.UploadResult, error) {
	resp, err := p.extractor.Extract(ctx, p.variant, src.Name(), bytes.NewReader(data))
	if err != nil {
		return core.UploadResult{}, err
	}

	p.setState(Decoding)

	if resp.DecodeErr != nil {
		p.logger.WarnContext(ctx, "Malformed extraction metadata, using defaults", "error", resp.DecodeErr)
	}
	md := resp.Metadata.WithDefaults()

	filename := resp.Filename
	if filename == "" {
		filename = extraction.FallbackFilename(src.Name(), p.variant)
	}

	if len(resp.Body) == 0 {
		return core.UploadResult{}, core.ErrEmptyResponse
	}

	month, year, inferred := p.period(filename, src.Name(), md.IncomePeriod)

	res := core.UploadResult{
		Filename:             filename,
		Month:                month,
		Year:                 year,
		Ingreso:              core.RoundAmount(md.IncomeMonth),
		TotalCount:           md.TotalCount,
		ExecutionTimeSeconds: md.ExecutionTime,
		Variant:              p.variant,
		MonthInferred:        inferred,
	}

	if accept != nil {
		if err := accept(ctx, res); err != nil {
			return core.UploadResult{}, err
		}
	}

	if p.saver != nil {
		path, err := p.saver.Save(ctx, filename, resp.Body)
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to save extracted file", "filename", filename, "error", err)
		} else {
			res.SavedPath = path
		}
	}

	return res, nil
}

// period picks the statement month and year. A period reported by the
// backend wins; otherwise the month comes from the resolved filename and the
// year from the first 20xx token of either name.
func (p *Pipeline) period(resolved, original string, reported *extraction.Period) (core.Month, int, bool) {
	if reported != nil {
		return reported.Month, reported.Year, false
	}
	now := p.now()
	month, _ := core.MonthFromFilename(resolved, now)
	year, found := core.YearFromFilename(resolved, now)
	if !found {
		year, _ = core.YearFromFilename(original, now)
	}
	return month, year, true
}
