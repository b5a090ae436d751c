package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a non-negative decimal string to float64. Both the
// decimal dot and the decimal comma are accepted.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("0")      -> 0, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return 0, ErrInvalidAmount
			}
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !ValidAmount(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// ValidAmount reports whether v is a non-negative finite amount that stays
// finite when rounded to cents.
func ValidAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v*100, 0)
}

// ParseCount converts a non-negative integer string.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ErrInvalidCount
	}
	return n, nil
}

// RoundAmount rounds to cents, half away from zero.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
