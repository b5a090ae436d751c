package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	VariantFull     Variant = "full"
	VariantFullJSON Variant = "full-json"
	VariantPartial  Variant = "partial"
)

type (
	// Variant selects one of the ExtractionService endpoints.
	Variant string

	ProcessedStatement struct {
		ID          int64   `json:"id,omitempty"` // zero until persisted
		Filename    string  `json:"filename"`
		Month       Month   `json:"month"`
		Year        int     `json:"year"`
		Ingreso     float64 `json:"ingreso"`
		TotalCount  int     `json:"totalCount"`
		ProcessedAt string  `json:"processedAt"`
	}

	// UploadResult is the outcome of one successful upload-and-decode cycle.
	UploadResult struct {
		Filename             string  `json:"filename"`
		Month                Month   `json:"month"`
		Year                 int     `json:"year"`
		Ingreso              float64 `json:"ingreso"`
		TotalCount           int     `json:"totalCount"`
		ExecutionTimeSeconds float64 `json:"executionTimeSeconds"`
		Variant              Variant `json:"variant"`
		SavedPath            string  `json:"savedPath,omitempty"`
		// MonthInferred is true when Month/Year came from the filename heuristic
		// rather than from backend metadata.
		MonthInferred bool `json:"monthInferred"`
	}
)

var (
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCount    = errors.New("invalid transaction count")
	ErrEmptyFilename   = errors.New("empty filename")
	ErrInvalidVariant  = errors.New("invalid extraction variant")
	ErrStatementNotNew = errors.New("statement already has an id")
)

// IsValid returns true if the variant names a known endpoint.
func (v Variant) IsValid() bool {
	switch v {
	case VariantFull, VariantFullJSON, VariantPartial:
		return true
	default:
		return false
	}
}

func (v Variant) String() string {
	return string(v)
}

// ParseVariant maps a query/flag value to a Variant. Empty means partial,
// the flow that feeds the dashboard.
func ParseVariant(s string) (Variant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return VariantPartial, nil
	}
	v := Variant(s)
	if !v.IsValid() {
		return "", ErrInvalidVariant
	}
	return v, nil
}

// ValidYear reports whether y is a four digit calendar year.
func ValidYear(y int) bool {
	return y >= 1000 && y <= 9999
}

func (s ProcessedStatement) Validate() error {
	if strings.TrimSpace(s.Filename) == "" {
		return ErrEmptyFilename
	}
	if !s.Month.IsValid() {
		return ErrInvalidMonth
	}
	if !ValidYear(s.Year) {
		return ErrInvalidYear
	}
	if !ValidAmount(s.Ingreso) {
		return ErrInvalidAmount
	}
	if s.TotalCount < 0 {
		return ErrInvalidCount
	}
	return nil
}

// Key returns the logical identity of an upload.
func (s ProcessedStatement) Key() StatementKey {
	return StatementKey{Filename: s.Filename, Month: s.Month, Year: s.Year}
}

// StatementKey identifies a logical upload: (filename, month, year).
type StatementKey struct {
	Filename string
	Month    Month
	Year     int
}

// NewStatement converts an upload result into a statement ready to persist.
func NewStatement(r UploadResult, processedAt time.Time) ProcessedStatement {
	return ProcessedStatement{
		Filename:    r.Filename,
		Month:       r.Month,
		Year:        r.Year,
		Ingreso:     r.Ingreso,
		TotalCount:  r.TotalCount,
		ProcessedAt: processedAt.UTC().Format(time.RFC3339),
	}
}

// SuccessMessage is the status line shown after a completed upload.
func SuccessMessage(r UploadResult) string {
	if r.Variant == VariantFull {
		return "Archivo procesado y descargado correctamente."
	}
	return fmt.Sprintf("Archivo CSV procesado y descargado correctamente en %.2f segundos.", r.ExecutionTimeSeconds)
}
