package core

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Month is one of the twelve Spanish three-letter abbreviations.
type Month string

const (
	Ene Month = "Ene"
	Feb Month = "Feb"
	Mar Month = "Mar"
	Abr Month = "Abr"
	May Month = "May"
	Jun Month = "Jun"
	Jul Month = "Jul"
	Ago Month = "Ago"
	Sep Month = "Sep"
	Oct Month = "Oct"
	Nov Month = "Nov"
	Dic Month = "Dic"
)

var ErrInvalidMonth = errors.New("invalid month")

// Months lists the abbreviations in calendar order.
var Months = [12]Month{Ene, Feb, Mar, Abr, May, Jun, Jul, Ago, Sep, Oct, Nov, Dic}

var monthNames = map[string]Month{
	"ENERO":      Ene,
	"FEBRERO":    Feb,
	"MARZO":      Mar,
	"ABRIL":      Abr,
	"MAYO":       May,
	"JUNIO":      Jun,
	"JULIO":      Jul,
	"AGOSTO":     Ago,
	"SEPTIEMBRE": Sep,
	"OCTUBRE":    Oct,
	"NOVIEMBRE":  Nov,
	"DICIEMBRE":  Dic,
}

var (
	monthNameRE = regexp.MustCompile(`(?i)(ENERO|FEBRERO|MARZO|ABRIL|MAYO|JUNIO|JULIO|AGOSTO|SEPTIEMBRE|OCTUBRE|NOVIEMBRE|DICIEMBRE)`)
	yearRE      = regexp.MustCompile(`20\d{2}`)
)

func (m Month) IsValid() bool {
	return m.Number() != 0
}

// Number returns 1-12, or 0 for an unknown value.
func (m Month) Number() int {
	for i, v := range Months {
		if v == m {
			return i + 1
		}
	}
	return 0
}

func (m Month) String() string {
	return string(m)
}

// MonthOf returns the abbreviation for a time.Month.
func MonthOf(m time.Month) Month {
	if m < time.January || m > time.December {
		return ""
	}
	return Months[m-1]
}

// ParseMonth normalizes free text into a Month. It accepts the abbreviation in
// any case, the full Spanish name, or a month number.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidMonth
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return "", ErrInvalidMonth
		}
		return Months[n-1], nil
	}
	upper := strings.ToUpper(s)
	if m, ok := monthNames[upper]; ok {
		return m, nil
	}
	for _, m := range Months {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	return "", ErrInvalidMonth
}

// MonthFromFilename is a heuristic: it scans name for a full Spanish month
// name and returns its abbreviation. found is false when no token matched and
// the month of now was used instead.
func MonthFromFilename(name string, now time.Time) (m Month, found bool) {
	if match := monthNameRE.FindString(name); match != "" {
		return monthNames[strings.ToUpper(match)], true
	}
	return MonthOf(now.Month()), false
}

// YearFromFilename returns the first 20xx token in name, or the year of now.
func YearFromFilename(name string, now time.Time) (year int, found bool) {
	if match := yearRE.FindString(name); match != "" {
		if y, err := strconv.Atoi(match); err == nil {
			return y, true
		}
	}
	return now.Year(), false
}
