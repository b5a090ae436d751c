package pipeline

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Source is a file chosen for upload.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource reads a file from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return filepath.Base(f.Path) }

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(f.Path) }

// BytesSource is an upload already held in memory, such as a multipart
// form file.
type BytesSource struct {
	Filename string
	Data     []byte
}

func (b BytesSource) Name() string { return b.Filename }

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}
