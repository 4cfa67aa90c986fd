package format

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Default resolver settings.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultUserAgent     = "dcatgraph/0.1"
	DefaultProbeCacheTTL = 10 * time.Minute
)

// How a locator's format was determined.
const (
	ViaContentType = "content-type"
	ViaSuffix      = "suffix"
)

// Resolver determines which installed format can read a locator.
type Resolver struct {
	registry  *Registry
	client    HTTPClient
	cache     *ProbeCache
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for probes and fetches.
func WithHTTPClient(client HTTPClient) Option {
	return func(r *Resolver) { r.client = client }
}

// WithProbeCache replaces the probe cache. A nil cache disables caching.
func WithProbeCache(cache *ProbeCache) Option {
	return func(r *Resolver) { r.cache = cache }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(r *Resolver) { r.userAgent = userAgent }
}

// WithTimeout bounds each probe and fetch.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) { r.timeout = timeout }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics records probe outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver over registry.
func NewResolver(registry *Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry:  registry,
		cache:     NewProbeCache(DefaultProbeCacheTTL),
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = NewHTTPClient(r.timeout)
	}
	return r
}

// Registry returns the resolver's format registry.
func (r *Resolver) Registry() *Registry { return r.registry }

// Resolve returns the format for locator, or false if none applies.
//
// For http(s) locators a HEAD request advertising the installed media types
// is sent first; a declared media type bound to an installed format wins.
// Otherwise, and for file locators, the filename suffix decides. A failed
// probe is not an error: resolution simply continues with the suffix.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*Format, bool) {
	if isHTTP(locator) {
		mediaType, err := r.probe(ctx, locator)
		if err != nil {
			r.logger.Debug("content-type probe failed", "locator", locator, "error", err)
		} else if f, ok := r.registry.ByMediaType(mediaType); ok {
			r.logger.Debug("resolved format", "locator", locator, "format", f.Name, "via", ViaContentType)
			return f, true
		}
	}

	if ext := suffix(locator); ext != "" {
		if f, ok := r.registry.ByExtension(ext); ok {
			r.logger.Debug("resolved format", "locator", locator, "format", f.Name, "via", ViaSuffix)
			return f, true
		}
	}
	return nil, false
}

// probe issues a HEAD request and returns the declared media type without
// parameters. Results are cached per locator.
func (r *Resolver) probe(ctx context.Context, locator string) (string, error) {
	if r.cache != nil {
		if mediaType, ok := r.cache.Get(locator); ok {
			r.metrics.RecordProbe(metrics.ProbeHit)
			return mediaType, nil
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		r.metrics.RecordProbe(metrics.ProbeError)
		return "", fmt.Errorf("create probe: %w", err)
	}
	req.Header.Set("Accept", r.registry.AcceptHeader())
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.metrics.RecordProbe(metrics.ProbeError)
		return "", fmt.Errorf("HEAD %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.metrics.RecordProbe(metrics.ProbeError)
		return "", fmt.Errorf("HEAD %s: HTTP %d", locator, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := ""
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			r.metrics.RecordProbe(metrics.ProbeError)
			return "", fmt.Errorf("HEAD %s: content type %q: %w", locator, contentType, err)
		}
		mediaType = parsed
	}

	r.metrics.RecordProbe(metrics.ProbeMiss)
	if r.cache != nil {
		r.cache.Store(locator, req, resp, mediaType)
	}
	return mediaType, nil
}

// Read resolves locator and merges its triples into g. An unresolvable
// locator fails with a *errs.LoadError of code format_unresolved.
func (r *Resolver) Read(ctx context.Context, g *store.TripleStore, locator, base string) (*Format, error) {
	f, ok := r.Resolve(ctx, locator)
	if !ok {
		return nil, errs.NewLoadError(errs.CodeFormatUnresolved, locator, nil, "no installed format matches")
	}
	src := r.Source(locator)
	r.logger.Debug("reading", "source", describeSource(src), "format", f.Name, "graph", g.Name())
	if err := g.Read(ctx, src, base, f.Parser()); err != nil {
		return f, err
	}
	return f, nil
}

// suffix returns the lower-case extension of the locator's path, ignoring
// any query or fragment.
func suffix(locator string) string {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
		if p == "" {
			p = u.Opaque
		}
		return normalizeExtension(path.Ext(p))
	}
	return normalizeExtension(filepath.Ext(p))
}
