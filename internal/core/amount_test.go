package core

import (
	"math"
	"strings"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.34", 12.34, true},
		{"12,34", 12.34, true},
		{"0", 0, true},
		{" 1500 ", 1500, true},
		{"", 0, false},
		{"-1", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"1" + strings.Repeat("0", 308), 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseAmount(%q) = %v,%v want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseAmount(%q) expected error", tc.in)
		}
	}
}

func TestValidAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want bool
	}{
		{0, true},
		{1500.5, true},
		{1e15, true},
		{-0.01, false},
		{math.NaN(), false},
		{math.Inf(1), false},
		{1e308, false},
	}
	for _, tc := range cases {
		if got := ValidAmount(tc.in); got != tc.want {
			t.Errorf("ValidAmount(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	if n, err := ParseCount("23"); err != nil || n != 23 {
		t.Fatalf("got %d,%v", n, err)
	}
	for _, bad := range []string{"", "-2", "2.5"} {
		if _, err := ParseCount(bad); err == nil {
			t.Errorf("ParseCount(%q) expected error", bad)
		}
	}
}
