package format

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// HTTPSource fetches a locator with GET.
type HTTPSource struct {
	locator   string
	client    HTTPClient
	accept    string
	userAgent string
	timeout   time.Duration
}

func (s *HTTPSource) Locator() string { return s.locator }

// Open issues the request. The returned body releases the request deadline
// when closed.
func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.locator, nil)
	if err != nil {
		cancel()
		return nil, errs.NewLoadError(errs.CodeSourceUnreachable, s.locator, err, "create request")
	}
	req.Header.Set("Accept", s.accept)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, errs.NewLoadError(errs.CodeSourceUnreachable, s.locator, err, "GET failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, errs.NewLoadError(errs.CodeSourceStatus, s.locator, nil, "GET returned HTTP %d", resp.StatusCode)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// FileSource reads a local file named by a file:// URI or a plain path.
type FileSource struct {
	locator string
	path    string
}

// NewFileSource creates a source for a file:// URI or a plain path.
func NewFileSource(locator string) *FileSource {
	return &FileSource{locator: locator, path: filePath(locator)}
}

func (s *FileSource) Locator() string { return s.locator }

func (s *FileSource) Open(context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errs.NewLoadError(errs.CodeSourceUnreachable, s.locator, err, "open file")
	}
	return f, nil
}

// Source returns the source for a locator: HTTP for http(s) URIs and a
// file otherwise.
func (r *Resolver) Source(locator string) store.Source {
	if isHTTP(locator) {
		return &HTTPSource{
			locator:   locator,
			client:    r.client,
			accept:    r.registry.AcceptHeader(),
			userAgent: r.userAgent,
			timeout:   r.timeout,
		}
	}
	return NewFileSource(locator)
}

func isHTTP(locator string) bool {
	lower := strings.ToLower(locator)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func filePath(locator string) string {
	if !strings.HasPrefix(strings.ToLower(locator), "file:") {
		return locator
	}
	u, err := url.Parse(locator)
	if err != nil {
		return strings.TrimPrefix(locator, "file:")
	}
	if u.Path == "" {
		return u.Opaque
	}
	return u.Path
}

func describeSource(src store.Source) string {
	switch s := src.(type) {
	case *HTTPSource:
		return fmt.Sprintf("http %s", s.locator)
	case *FileSource:
		return fmt.Sprintf("file %s", s.path)
	default:
		return src.Locator()
	}
}
