package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFileSelected is the ValidationError raised by submit without a file.
	ErrNoFileSelected = &ValidationError{Reason: "no file selected"}

	// ErrEmptyResponse is returned when the extraction body has zero length.
	ErrEmptyResponse = errors.New("empty response body")

	// ErrBusy rejects a submission while another one is in flight.
	ErrBusy = errors.New("upload already in progress")

	// ErrDuplicate is returned under the reject duplicate policy.
	ErrDuplicate = errors.New("statement already processed")
)

// ValidationError is a local guard failure; it never reaches the network.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UpstreamError carries a non-success status from the ExtractionService.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("extraction service returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("extraction service returned %d", e.StatusCode)
}

// DecodeError reports malformed response metadata. It is recovered locally.
type DecodeError struct {
	Header string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s header: %v", e.Header, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed storage operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UserMessage converts any pipeline failure into the status string shown to
// the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		ue *UpstreamError
	)
	switch {
	case errors.Is(err, ErrNoFileSelected):
		return "Selecciona un archivo PDF antes de continuar."
	case errors.As(err, &ve):
		return "El archivo seleccionado no es un PDF válido."
	case errors.Is(err, ErrBusy):
		return "Ya hay un archivo en proceso. Espera a que termine."
	case errors.Is(err, ErrEmptyResponse):
		return "El archivo recibido está vacío."
	case errors.Is(err, ErrDuplicate):
		return "Este estado de cuenta ya fue procesado."
	case errors.As(err, &ue):
		return "Error al procesar el archivo."
	default:
		return "Ocurrió un error al procesar el archivo."
	}
}
