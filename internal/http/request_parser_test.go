package http

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bauchermatch/internal/core"
)

func TestParseYear(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{"missing", "", 0, false},
		{"valid", "year=2024", 2024, false},
		{"padded", "year=%202023%20", 2023, false},
		{"not a number", "year=abc", 0, true},
		{"two digits", "year=24", 0, true},
		{"five digits", "year=20245", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/dashboard?"+tt.query, nil)
			got, err := ParseYear(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseYear() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseYear() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseStatementID(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"7", 7, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodDelete, "/api/statements/"+tt.value, nil)
			r.SetPathValue("id", tt.value)
			got, err := ParseStatementID(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatementID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatementID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		query   string
		want    core.Variant
		wantErr bool
	}{
		{"", core.VariantFullJSON, false},
		{"variant=full", core.VariantFull, false},
		{"variant=PARTIAL", core.VariantPartial, false},
		{"variant=pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/uploads?"+tt.query, nil)
			got, err := ParseVariant(r, core.VariantFullJSON)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVariant() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVariant() = %q, want %q", got, tt.want)
			}
		})
	}
}

// multipartRequest builds an upload request with one file under field.
func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	} else if err := mw.WriteField("note", "nothing attached"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestReadUpload(t *testing.T) {
	pdf := []byte("%PDF-1.4 test")

	t.Run("valid pdf", func(t *testing.T) {
		r := multipartRequest(t, UploadField, "estado MARZO 2024.pdf", pdf)
		src, err := ReadUpload(httptest.NewRecorder(), r, 1<<20)
		if err != nil {
			t.Fatalf("ReadUpload: %v", err)
		}
		if src.Filename != "estado MARZO 2024.pdf" {
			t.Errorf("filename = %q", src.Filename)
		}
		if !bytes.Equal(src.Data, pdf) {
			t.Errorf("data = %q", src.Data)
		}
	})

	t.Run("directories are stripped", func(t *testing.T) {
		r := multipartRequest(t, UploadField, `C:\Users\ana\ENERO.pdf`, pdf)
		src, err := ReadUpload(httptest.NewRecorder(), r, 1<<20)
		if err != nil {
			t.Fatalf("ReadUpload: %v", err)
		}
		if src.Filename != "ENERO.pdf" {
			t.Errorf("filename = %q, want ENERO.pdf", src.Filename)
		}
	})

	t.Run("no file", func(t *testing.T) {
		r := multipartRequest(t, UploadField, "", nil)
		_, err := ReadUpload(httptest.NewRecorder(), r, 1<<20)
		if !errors.Is(err, core.ErrNoFileSelected) {
			t.Fatalf("err = %v, want ErrNoFileSelected", err)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("x"))
		r.Header.Set("Content-Type", "text/plain")
		_, err := ReadUpload(httptest.NewRecorder(), r, 1<<20)
		if !errors.Is(err, core.ErrNoFileSelected) {
			t.Fatalf("err = %v, want ErrNoFileSelected", err)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		r := multipartRequest(t, UploadField, "notes.txt", pdf)
		_, err := ReadUpload(httptest.NewRecorder(), r, 1<<20)
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		r := multipartRequest(t, UploadField, "vacio.pdf", nil)
		_, err := ReadUpload(httptest.NewRecorder(), r, 1<<20)
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})
}
