// Package dashboard derives the yearly income series shown on the dashboard.
package dashboard

import (
	"sort"
	"time"

	"bauchermatch/internal/core"
)

// FloorYear is the first year always offered for selection.
const FloorYear = 2020

// Reconcile builds the 12-slot series for year from sparse totals. Totals of
// other years are ignored; months without data are zero. Several totals for
// the same month are summed.
func Reconcile(year int, totals []core.MonthlyTotal) core.ChartSeries {
	series := core.ChartSeries{Year: year}
	for i, m := range core.Months {
		series.Points[i] = core.MonthIncome{Month: m}
	}
	for _, t := range totals {
		if t.Year != year {
			continue
		}
		n := t.Month.Number()
		if n == 0 {
			continue
		}
		series.Points[n-1].Ingreso += t.Ingreso
	}
	for i := range series.Points {
		series.Points[i].Ingreso = core.RoundAmount(series.Points[i].Ingreso)
	}
	return series
}

// AvailableYears returns FloorYear through now+2 joined with the persisted
// years, deduplicated and most recent first. defaultYear is the most recent
// persisted year, or the year of now when nothing is persisted.
func AvailableYears(now time.Time, persisted []int) (years []int, defaultYear int) {
	seen := make(map[int]struct{})
	for y := FloorYear; y <= now.Year()+2; y++ {
		seen[y] = struct{}{}
	}

	defaultYear = now.Year()
	latest := 0
	for _, y := range persisted {
		if !core.ValidYear(y) {
			continue
		}
		seen[y] = struct{}{}
		if y > latest {
			latest = y
		}
	}
	if latest != 0 {
		defaultYear = latest
	}

	years = make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, defaultYear
}
