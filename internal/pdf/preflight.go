// Package pdf checks uploads locally before they are sent for extraction.
package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"bauchermatch/internal/core"
)

var magic = []byte("%PDF-")

// Info describes a document that passed preflight.
type Info struct {
	Pages int
	Size  int64
}

// Preflight validates that rs holds a readable PDF with at least one page.
// Failures are *core.ValidationError. rs is rewound before returning.
func Preflight(rs io.ReadSeeker) (Info, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return Info{}, fmt.Errorf("seek pdf: %w", err)
	}
	defer rs.Seek(0, io.SeekStart)

	if size == 0 {
		return Info{}, &core.ValidationError{Reason: "empty file"}
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("seek pdf: %w", err)
	}
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(rs, head); err != nil || !bytes.Equal(head, magic) {
		return Info{}, &core.ValidationError{Reason: "missing PDF header"}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("seek pdf: %w", err)
	}
	if err := api.Validate(rs, conf); err != nil {
		return Info{}, &core.ValidationError{Reason: "invalid PDF structure", Err: err}
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("seek pdf: %w", err)
	}
	pages, err := api.PageCount(rs, conf)
	if err != nil {
		return Info{}, &core.ValidationError{Reason: "unreadable page tree", Err: err}
	}
	if pages < 1 {
		return Info{}, &core.ValidationError{Reason: "document has no pages"}
	}

	return Info{Pages: pages, Size: size}, nil
}
