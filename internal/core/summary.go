package core

// MonthlyTotal is the income and transaction count aggregated for one
// (month, year) pair.
type MonthlyTotal struct {
	Month      Month   `json:"month"`
	Year       int     `json:"year"`
	Ingreso    float64 `json:"ingreso"`
	TotalCount int     `json:"totalCount"`
}

// MonthIncome is one slot of a ChartSeries.
type MonthIncome struct {
	Month   Month   `json:"month"`
	Ingreso float64 `json:"ingreso"`
}

// ChartSeries is a zero-filled 12-month income series for one year, in
// calendar order. It is derived for display and never persisted.
type ChartSeries struct {
	Year   int             `json:"year"`
	Points [12]MonthIncome `json:"points"`
}

// Total sums the series.
func (c ChartSeries) Total() float64 {
	var sum float64
	for _, p := range c.Points {
		sum += p.Ingreso
	}
	return sum
}

// At returns the ingreso for month m, or 0 for an unknown month.
func (c ChartSeries) At(m Month) float64 {
	n := m.Number()
	if n == 0 {
		return 0
	}
	return c.Points[n-1].Ingreso
}
