package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bauchermatch/internal/core"
)

var errRefresh = errors.New("refresh dashboard view")

// TotalsSource supplies persisted aggregates. ok is false when the read
// failed, which is not the same as having no data.
type TotalsSource interface {
	MonthlyTotals(ctx context.Context) ([]core.MonthlyTotal, bool)
	AvailableYears(ctx context.Context) ([]int, bool)
}

type periodKey struct {
	month core.Month
	year  int
}

// View is the aggregate shared by every upload flow. Each Merge applies one
// result in full under the lock.
type View struct {
	mu     sync.RWMutex
	totals map[periodKey]core.MonthlyTotal
	years  map[int]struct{}
	now    func() time.Time
}

// Snapshot is everything the dashboard renders for one selected year.
type Snapshot struct {
	Year        int                 `json:"year"`
	DefaultYear int                 `json:"defaultYear"`
	Years       []int               `json:"years"`
	Series      core.ChartSeries    `json:"series"`
	Total       float64             `json:"total"`
	Totals      []core.MonthlyTotal `json:"totals"`
}

func NewView(now func() time.Time) *View {
	if now == nil {
		now = time.Now
	}
	return &View{
		totals: make(map[periodKey]core.MonthlyTotal),
		years:  make(map[int]struct{}),
		now:    now,
	}
}

// Load replaces the view contents with persisted data.
func (v *View) Load(totals []core.MonthlyTotal, years []int) {
	nextTotals := make(map[periodKey]core.MonthlyTotal, len(totals))
	for _, t := range totals {
		if !t.Month.IsValid() {
			continue
		}
		k := periodKey{t.Month, t.Year}
		cur := nextTotals[k]
		cur.Month, cur.Year = t.Month, t.Year
		cur.Ingreso += t.Ingreso
		cur.TotalCount += t.TotalCount
		nextTotals[k] = cur
	}
	nextYears := make(map[int]struct{}, len(years))
	for _, y := range years {
		nextYears[y] = struct{}{}
	}
	for k := range nextTotals {
		nextYears[k.year] = struct{}{}
	}

	v.mu.Lock()
	v.totals = nextTotals
	v.years = nextYears
	v.mu.Unlock()
}

// Refresh reloads from src, reading totals and years concurrently. When
// either read fails the current contents are kept and false is returned.
func (v *View) Refresh(ctx context.Context, src TotalsSource) bool {
	var (
		totals []core.MonthlyTotal
		years  []int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ok bool
		if totals, ok = src.MonthlyTotals(gctx); !ok {
			return errRefresh
		}
		return nil
	})
	g.Go(func() error {
		var ok bool
		if years, ok = src.AvailableYears(gctx); !ok {
			return errRefresh
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return false
	}
	v.Load(totals, years)
	return true
}

// Merge adds one completed upload to the aggregate.
func (v *View) Merge(r core.UploadResult) {
	if !r.Month.IsValid() || !core.ValidYear(r.Year) {
		return
	}
	k := periodKey{r.Month, r.Year}

	v.mu.Lock()
	defer v.mu.Unlock()
	cur := v.totals[k]
	cur.Month, cur.Year = r.Month, r.Year
	cur.Ingreso += r.Ingreso
	cur.TotalCount += r.TotalCount
	v.totals[k] = cur
	v.years[r.Year] = struct{}{}
}

// Totals returns the aggregates ordered by year then calendar month.
func (v *View) Totals() []core.MonthlyTotal {
	v.mu.RLock()
	out := make([]core.MonthlyTotal, 0, len(v.totals))
	for _, t := range v.totals {
		out = append(out, t)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month.Number() < out[j].Month.Number()
	})
	return out
}

// Series reconciles the current aggregate for year.
func (v *View) Series(year int) core.ChartSeries {
	return Reconcile(year, v.Totals())
}

// Years returns the selectable years and the default selection.
func (v *View) Years() ([]int, int) {
	v.mu.RLock()
	persisted := make([]int, 0, len(v.years))
	for y := range v.years {
		persisted = append(persisted, y)
	}
	v.mu.RUnlock()
	return AvailableYears(v.now(), persisted)
}

// Snapshot returns the dashboard for year, or for the default year when
// year is zero.
func (v *View) Snapshot(year int) Snapshot {
	years, def := v.Years()
	if year == 0 {
		year = def
	}
	totals := v.Totals()
	series := Reconcile(year, totals)
	return Snapshot{
		Year:        year,
		DefaultYear: def,
		Years:       years,
		Series:      series,
		Total:       core.RoundAmount(series.Total()),
		Totals:      totals,
	}
}
