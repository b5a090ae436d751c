// Package http serves the upload and dashboard data contract as a JSON API.
//
// This file implements a small builder for JSON responses so every handler
// writes status, headers and body the same way.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bauchermatch/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	// Encode before the status goes out so a body that cannot be encoded
	// still gets an error response.
	data, err := json.Marshal(b.body)
	if err != nil {
		data, _ = json.Marshal(errorBody{Error: "encoding_failed", Message: core.UserMessage(err)})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(append(data, '\n'))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse creates an error response. message is the user-facing status
// line; code is a stable machine-readable identifier.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: code, Message: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", message)
}

// ServiceUnavailableError reports that storage could not serve the request.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, "storage_unavailable", message)
}

// UploadErrorResponse maps an upload failure to its status code and the
// Spanish status line shown to the user.
func UploadErrorResponse(err error) *JSONResponseBuilder {
	var (
		ve *core.ValidationError
		ue *core.UpstreamError
		mb *http.MaxBytesError
	)
	msg := core.UserMessage(err)
	switch {
	case errors.As(err, &mb):
		return ErrorResponse(http.StatusRequestEntityTooLarge, "too_large", "El archivo supera el tamaño máximo permitido.")
	case errors.Is(err, core.ErrInvalidVariant):
		return ErrorResponse(http.StatusBadRequest, "invalid_variant", "Tipo de extracción no válido.")
	case errors.As(err, &ve):
		return ErrorResponse(http.StatusBadRequest, "validation", msg)
	case errors.Is(err, core.ErrBusy):
		return ErrorResponse(http.StatusConflict, "busy", msg)
	case errors.Is(err, core.ErrDuplicate):
		return ErrorResponse(http.StatusConflict, "duplicate", msg)
	case errors.Is(err, core.ErrEmptyResponse):
		return ErrorResponse(http.StatusBadGateway, "empty_response", msg)
	case errors.As(err, &ue):
		return ErrorResponse(http.StatusBadGateway, "upstream", msg)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusGatewayTimeout, "timeout", msg)
	default:
		return ErrorResponse(http.StatusBadGateway, "extraction_failed", msg)
	}
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed").
		Header("Allow", allowedMethods)
}
