package google

import (
	"fmt"
	"strconv"

	"bauchermatch/internal/core"
)

const (
	rowLabelIncome = "Ingreso"
	colLabelTotal  = "Total"
)

// seriesRows lays a series out as two rows: "Año <year>", Ene..Dic, Total
// and "Ingreso", twelve amounts, the sum.
func seriesRows(series core.ChartSeries) [][]interface{} {
	header := make([]interface{}, 0, 14)
	values := make([]interface{}, 0, 14)
	header = append(header, fmt.Sprintf("Año %d", series.Year))
	values = append(values, rowLabelIncome)
	for _, p := range series.Points {
		header = append(header, string(p.Month))
		values = append(values, p.Ingreso)
	}
	header = append(header, colLabelTotal)
	values = append(values, core.RoundAmount(series.Total()))
	return [][]interface{}{header, values}
}

// parseSeriesRows is the inverse of seriesRows. Month columns are located
// by header so reordered or missing columns read as zero.
func parseSeriesRows(values [][]interface{}, year int) (core.ChartSeries, error) {
	series := core.ChartSeries{Year: year}
	for i, m := range core.Months {
		series.Points[i] = core.MonthIncome{Month: m}
	}
	if len(values) < 2 {
		return series, fmt.Errorf("unexpected series layout: %d rows", len(values))
	}

	headers := toStrings(values[0])
	row := values[1]
	for col, h := range headers {
		m, err := core.ParseMonth(h)
		if err != nil || col >= len(row) {
			continue
		}
		amount, ok := cellAmount(row[col])
		if !ok {
			return series, fmt.Errorf("unexpected amount %v for %s", row[col], m)
		}
		series.Points[m.Number()-1].Ingreso = amount
	}
	return series, nil
}

func cellAmount(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		if x == "" {
			return 0, true
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f, true
		}
		f, err := core.ParseAmount(x)
		return f, err == nil
	default:
		return 0, false
	}
}
