// Package convert calls the external sheet-image conversion service that
// turns scanned sheet music (PNG, JPEG, PDF) into MusicXML.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/etudekit/etude/pkg/metrics"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 10 << 20
)

// allowed upload content types, checked by magic bytes.
var signatures = map[string][]byte{
	"image/png":       {0x89, 'P', 'N', 'G'},
	"image/jpeg":      {0xFF, 0xD8, 0xFF},
	"application/pdf": {'%', 'P', 'D', 'F'},
}

// Client talks to the conversion service over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	maxBytes int64
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout bounds a single conversion round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithMaxUploadBytes caps the accepted image size.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient creates a conversion client for the given service base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		maxBytes: defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// serviceError is the error envelope the conversion service returns.
type serviceError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Convert uploads a sheet image and returns the MusicXML document produced
// by the service. The filename is advisory only.
func (c *Client) Convert(ctx context.Context, filename string, data []byte) ([]byte, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if int64(len(data)) > c.maxBytes {
		metrics.RecordConversionRequest("rejected")
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(data), c.maxBytes)
	}
	contentType, ok := sniff(data)
	if !ok {
		metrics.RecordConversionRequest("rejected")
		return nil, ErrUnsupportedFormat
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordConversionRequest("failed")
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordConversionRequest("failed")
		return nil, decodeError(resp)
	}

	xml, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes*4))
	if err != nil {
		metrics.RecordConversionRequest("failed")
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	metrics.RecordConversionRequest("ok")
	return xml, nil
}

// sniff identifies the upload by magic bytes and returns its content type.
func sniff(data []byte) (string, bool) {
	for contentType, sig := range signatures {
		if bytes.HasPrefix(data, sig) {
			return contentType, true
		}
	}
	return "", false
}

// decodeError turns a non-200 response into a typed error, preferring the
// service's structured envelope when present.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var se serviceError
	if err := json.Unmarshal(raw, &se); err == nil && se.Message != "" {
		return fmt.Errorf("%w: %s", ErrConversionFailed, se.Message)
	}
	return fmt.Errorf("%w: service returned status %d", ErrConversionFailed, resp.StatusCode)
}
