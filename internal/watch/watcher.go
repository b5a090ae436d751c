// Package watch feeds PDF statements dropped into an inbox directory to the
// statement service.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"bauchermatch/internal/core"
	"bauchermatch/internal/pipeline"
	"bauchermatch/internal/services"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

const maxBusyRetries = 5

// Processor runs one statement through upload and persistence.
type Processor interface {
	Process(ctx context.Context, src pipeline.Source, variant core.Variant) (services.Outcome, error)
}

var _ Processor = (*services.StatementService)(nil)

type Config struct {
	Dir      string
	Variant  core.Variant
	Debounce time.Duration
}

// Watcher processes stable *.pdf files in Dir one at a time.
type Watcher struct {
	dir       string
	variant   core.Variant
	debounce  time.Duration
	processor Processor
	logger    *slog.Logger
}

func New(cfg Config, processor Processor, logger *slog.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if !cfg.Variant.IsValid() {
		cfg.Variant = core.VariantPartial
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:       cfg.Dir,
		variant:   cfg.Variant,
		debounce:  cfg.Debounce,
		processor: processor,
		logger:    logger.With("inbox", cfg.Dir),
	}
}

// Run watches the inbox until ctx is done. Files already present when it
// starts are processed first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.logger.InfoContext(ctx, "Watching inbox", "debounce", w.debounce, "variant", w.variant)

	files := make(chan string, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(files)
		return w.collect(gctx, fw, files)
	})
	g.Go(func() error {
		for name := range files {
			w.handle(gctx, name)
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// collect turns create and write events into file names once a file has been
// quiet for the debounce interval.
func (w *Watcher) collect(ctx context.Context, fw *fsnotify.Watcher, out chan<- string) error {
	pending := make(map[string]time.Time)
	for _, name := range listPDFs(w.dir) {
		pending[name] = time.Time{}
	}

	tick := w.debounce / 4
	if tick < 25*time.Millisecond {
		tick = 25 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !isPDF(name) {
				continue
			}
			pending[name] = time.Now()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "Inbox watch error", "error", err)
		case now := <-ticker.C:
			var ready []string
			for name, t := range pending {
				if now.Sub(t) >= w.debounce {
					ready = append(ready, name)
				}
			}
			sort.Strings(ready)
			for _, name := range ready {
				delete(pending, name)
				select {
				case out <- name:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// handle processes one file and moves it out of the inbox. A busy pipeline
// is retried after the debounce interval.
func (w *Watcher) handle(ctx context.Context, name string) {
	path := filepath.Join(w.dir, name)
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		return
	}

	var err error
	for attempt := 0; attempt <= maxBusyRetries; attempt++ {
		_, err = w.processor.Process(ctx, pipeline.FileSource{Path: path}, w.variant)
		if !errors.Is(err, core.ErrBusy) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.debounce):
		}
	}

	dest := ProcessedDir
	switch {
	case err == nil:
		w.logger.InfoContext(ctx, "Inbox statement processed", "filename", name)
	case errors.Is(err, core.ErrDuplicate):
		w.logger.InfoContext(ctx, "Inbox statement already processed", "filename", name)
	case ctx.Err() != nil:
		return
	default:
		dest = FailedDir
		w.logger.WarnContext(ctx, "Inbox statement failed",
			"filename", name,
			"error", err,
			"message", core.UserMessage(err))
	}

	if err := moveInto(path, filepath.Join(w.dir, dest)); err != nil {
		w.logger.ErrorContext(ctx, "Failed to move inbox file", "filename", name, "dest", dest, "error", err)
	}
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf") && !strings.HasPrefix(name, ".")
}

func listPDFs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// moveInto moves src into dir, keeping its name unless taken. It renames
// when possible and falls back to copy and remove.
func moveInto(src, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := filepath.Base(src)
	dst := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, i, ext))
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
