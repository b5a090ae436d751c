package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"bauchermatch/internal/core"
)

// Response headers carrying extraction metadata.
const (
	HeaderMetadata      = "X-Metadata"
	HeaderExecutionTime = "X-Execution-Time"
	HeaderTotalCount    = "X-Total-Count"
	HeaderIncomeMonth   = "X-Income-Month"
)

// ParsedMetadata holds the metadata fields that were actually present in a
// response. Absent fields stay nil until WithDefaults fills them.
type ParsedMetadata struct {
	ExecutionTime *float64
	TotalCount    *int
	IncomeMonth   *float64
	IncomePeriod  *Period
}

// Period is the statement period reported by the backend, when it knows it.
type Period struct {
	Month core.Month
	Year  int
}

// Metadata is ParsedMetadata after defaulting.
type Metadata struct {
	ExecutionTime float64
	TotalCount    int
	IncomeMonth   float64
	IncomePeriod  *Period
}

// WithDefaults replaces every absent numeric field with zero.
func (m ParsedMetadata) WithDefaults() Metadata {
	var out Metadata
	if m.ExecutionTime != nil {
		out.ExecutionTime = *m.ExecutionTime
	}
	if m.TotalCount != nil {
		out.TotalCount = *m.TotalCount
	}
	if m.IncomeMonth != nil {
		out.IncomeMonth = *m.IncomeMonth
	}
	out.IncomePeriod = m.IncomePeriod
	return out
}

// Keys of the JSON metadata header.
const (
	keyExecutionTime = "execution_time"
	keyTotalCount    = "total_count"
	keyIncomeMonth   = "income_month"
	keyIncomePeriod  = "income_period"
)

// DecodeMetadata reads the JSON metadata header, or the individual headers
// when it is absent. Fields of the JSON header are decoded one by one: a
// field that is ill-typed or out of range stays absent while the others are
// kept, and the problems come back as a *core.DecodeError that callers log
// before carrying on with defaults. A header that is not a JSON object
// yields empty metadata.
func DecodeMetadata(h http.Header) (ParsedMetadata, error) {
	if raw := strings.TrimSpace(h.Get(HeaderMetadata)); raw != "" {
		return decodeJSONHeader(raw)
	}
	return decodeIndividualHeaders(h), nil
}

func decodeJSONHeader(raw string) (ParsedMetadata, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return ParsedMetadata{}, &core.DecodeError{Header: HeaderMetadata, Err: err}
	}

	var (
		out  ParsedMetadata
		errs []error
	)
	if v, ok := fields[keyExecutionTime]; ok && !isNull(v) {
		f, err := decodeNumber(v)
		if err == nil && !validSeconds(f) {
			err = fmt.Errorf("%v: %w", f, ErrInvalidSeconds)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", keyExecutionTime, err))
		} else {
			out.ExecutionTime = &f
		}
	}
	if v, ok := fields[keyTotalCount]; ok && !isNull(v) {
		n, err := decodeCount(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", keyTotalCount, err))
		} else {
			out.TotalCount = &n
		}
	}
	if v, ok := fields[keyIncomeMonth]; ok && !isNull(v) {
		f, err := decodeNumber(v)
		if err == nil && !core.ValidAmount(f) {
			err = core.ErrInvalidAmount
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", keyIncomeMonth, err))
		} else {
			out.IncomeMonth = &f
		}
	}
	if v, ok := fields[keyIncomePeriod]; ok && !isNull(v) {
		p, err := parsePeriod(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.IncomePeriod = &p
		}
	}

	if len(errs) > 0 {
		return out, &core.DecodeError{Header: HeaderMetadata, Err: errors.Join(errs...)}
	}
	return out, nil
}

// ErrInvalidSeconds reports an execution time that is negative or not finite.
var ErrInvalidSeconds = errors.New("invalid execution time")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// decodeCount accepts integral JSON numbers, including forms like 3.0.
func decodeCount(raw json.RawMessage) (int, error) {
	f, err := decodeNumber(raw)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, core.ErrInvalidCount
	}
	return int(f), nil
}

func validSeconds(f float64) bool {
	return f >= 0 && !math.IsInf(f, 0)
}

// parsePeriod accepts "2024-03" or {"month": "Mar" | 3, "year": 2024}.
func parsePeriod(raw json.RawMessage) (Period, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		year, month, ok := strings.Cut(s, "-")
		if !ok {
			return Period{}, fmt.Errorf("income_period %q: want YYYY-MM", s)
		}
		y, err := strconv.Atoi(year)
		if err != nil || !core.ValidYear(y) {
			return Period{}, fmt.Errorf("income_period %q: %w", s, core.ErrInvalidYear)
		}
		m, err := core.ParseMonth(month)
		if err != nil {
			return Period{}, fmt.Errorf("income_period %q: %w", s, err)
		}
		return Period{Month: m, Year: y}, nil
	}

	var obj struct {
		Month json.RawMessage `json:"month"`
		Year  int             `json:"year"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Period{}, fmt.Errorf("income_period: %w", err)
	}
	if !core.ValidYear(obj.Year) {
		return Period{}, fmt.Errorf("income_period: %w", core.ErrInvalidYear)
	}
	monthText := strings.Trim(string(obj.Month), `"`)
	m, err := core.ParseMonth(monthText)
	if err != nil {
		return Period{}, fmt.Errorf("income_period: %w", err)
	}
	return Period{Month: m, Year: obj.Year}, nil
}

// decodeIndividualHeaders mirrors what the partial endpoint sends. Unparseable
// values are treated as absent.
func decodeIndividualHeaders(h http.Header) ParsedMetadata {
	var out ParsedMetadata
	if v := strings.TrimSpace(h.Get(HeaderExecutionTime)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && validSeconds(f) {
			out.ExecutionTime = &f
		}
	}
	if v := strings.TrimSpace(h.Get(HeaderTotalCount)); v != "" {
		if n, err := core.ParseCount(v); err == nil {
			out.TotalCount = &n
		}
	}
	if v := strings.TrimSpace(h.Get(HeaderIncomeMonth)); v != "" {
		if f, err := core.ParseAmount(v); err == nil {
			out.IncomeMonth = &f
		}
	}
	return out
}
