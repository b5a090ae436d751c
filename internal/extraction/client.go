// Package extraction talks to the remote ExtractionService that turns a
// statement PDF into a CSV or JSON file plus summary metadata.
package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"bauchermatch/internal/core"
)

const (
	// FormField is the multipart field the service reads the PDF from.
	FormField = "file"

	maxResponseBytes = 64 << 20
	maxErrorBody     = 512
)

var endpoints = map[core.Variant]string{
	core.VariantFull:     "/api/v1/upload-pdf",
	core.VariantFullJSON: "/api/v1/extract-csv",
	core.VariantPartial:  "/api/v1/extract-partial-csv",
}

// Endpoint returns the request path for a variant.
func Endpoint(v core.Variant) (string, error) {
	p, ok := endpoints[v]
	if !ok {
		return "", core.ErrInvalidVariant
	}
	return p, nil
}

// Response is a successful extraction. Body may be empty; the caller decides
// what an empty file means.
type Response struct {
	Body        []byte
	Filename    string // from Content-Disposition, "" when absent
	ContentType string
	Metadata    ParsedMetadata
	// DecodeErr is set when the metadata header was malformed. Metadata is
	// then empty.
	DecodeErr error
	Elapsed   time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds a client for the service at baseURL. timeout bounds one
// whole submission, upload and download included.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClientWithPooling(timeout),
		timeout: timeout,
		logger:  logger,
	}
}

// newHTTPClientWithPooling keeps connections to the extraction service alive
// between uploads.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 10 * time.Second,
		// Extraction happens before the first response byte.
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Extract uploads the PDF read from r under filename to the endpoint of
// variant v. A non-2xx status returns *core.UpstreamError.
func (c *Client) Extract(ctx context.Context, v core.Variant, filename string, r io.Reader) (*Response, error) {
	path, err := Endpoint(v)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType := multipartBody(filename, r)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	c.logger.InfoContext(ctx, "Sending statement to extraction service",
		"variant", v,
		"filename", filename,
		"endpoint", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send to extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.WarnContext(ctx, "Extraction service rejected upload",
			"status", resp.StatusCode,
			"variant", v,
			"filename", filename)
		return nil, &core.UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("read extraction response: body exceeds %d bytes", maxResponseBytes)
	}

	out := &Response{
		Body:        data,
		Filename:    FilenameFromDisposition(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Elapsed:     time.Since(start),
	}
	out.Metadata, out.DecodeErr = DecodeMetadata(resp.Header)

	c.logger.InfoContext(ctx, "Extraction response received",
		"variant", v,
		"bytes", len(data),
		"suggested_filename", out.Filename,
		"elapsed_ms", out.Elapsed.Milliseconds())

	return out, nil
}

// multipartBody streams r as the "file" part of a multipart form.
func multipartBody(filename string, r io.Reader) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, escapeQuotes(filename)))
		h.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
