// Package http serves the upload and dashboard data contract as a JSON API.
//
// This file implements utilities for parsing and validating request data:
// query parameters, path values and the multipart upload.

package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"bauchermatch/internal/core"
	"bauchermatch/internal/pipeline"
)

// UploadField is the multipart field carrying the PDF.
const UploadField = "file"

var (
	errInvalidYear = errors.New("year must be a four digit number")
	errInvalidID   = errors.New("statement id must be a positive integer")
)

// ParseYear reads the optional year query parameter. A missing value
// returns 0, which callers treat as "no filter" or "default year".
func ParseYear(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || !core.ValidYear(y) {
		return 0, errInvalidYear
	}
	return y, nil
}

// ParseStatementID reads the {id} path value.
func ParseStatementID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// ParseVariant reads the variant query parameter, falling back to def when
// it is absent.
func ParseVariant(r *http.Request, def core.Variant) (core.Variant, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("variant"))
	if raw == "" {
		return def, nil
	}
	return core.ParseVariant(raw)
}

// ReadUpload reads the PDF from the multipart body, limited to maxBytes. A
// request without a file yields core.ErrNoFileSelected; a non-PDF name is a
// core.ValidationError.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (pipeline.BytesSource, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var mb *http.MaxBytesError
		if errors.As(err, &mb) {
			return pipeline.BytesSource{}, err
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return pipeline.BytesSource{}, core.ErrNoFileSelected
		}
		return pipeline.BytesSource{}, &core.ValidationError{Reason: "malformed multipart body", Err: err}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return pipeline.BytesSource{}, core.ErrNoFileSelected
		}
		return pipeline.BytesSource{}, &core.ValidationError{Reason: "unreadable file field", Err: err}
	}
	defer file.Close()

	name := sanitizeFilename(header)
	if name == "" {
		return pipeline.BytesSource{}, core.ErrNoFileSelected
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return pipeline.BytesSource{}, &core.ValidationError{Reason: fmt.Sprintf("%q is not a pdf", name)}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.BytesSource{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return pipeline.BytesSource{}, &core.ValidationError{Reason: "empty file"}
	}
	return pipeline.BytesSource{Filename: name, Data: data}, nil
}

// sanitizeFilename keeps the base name and drops control characters.
func sanitizeFilename(h *multipart.FileHeader) string {
	name := filepath.Base(strings.ReplaceAll(h.Filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
}
