// Package format resolves resource locators to triple serializations.
//
// A Registry holds the installed formats: each has a unique name, a media
// type, any number of file extensions and a parser. A Resolver maps a
// locator to a Format by probing its declared media type and falling back
// to the filename suffix.
package format

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// ParserFactory creates a parser for one read.
type ParserFactory func() store.Parser

// Writer serializes a graph. Prefixes map short labels to namespaces and
// are used to abbreviate IRIs where the syntax allows it.
type Writer interface {
	Write(w io.Writer, g store.Graph, prefixes map[string]string) error
}

// Format is an installed serialization.
type Format struct {
	Name       string
	MediaType  string
	Extensions []string

	newParser ParserFactory
	writer    Writer
}

// Parser returns a fresh parser for this format.
func (f *Format) Parser() store.Parser {
	return f.newParser()
}

// Writer returns the format's writer, if it has one.
func (f *Format) Writer() (Writer, bool) {
	return f.writer, f.writer != nil
}

func (f *Format) String() string {
	return fmt.Sprintf("%s (%s; %s)", f.Name, f.MediaType, strings.Join(f.Extensions, ", "))
}

// Registry is the set of installed formats. Install formats during start-up;
// lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []*Format
	byName  map[string]*Format
	byMedia map[string]*Format
	byExt   map[string]*Format
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Format),
		byMedia: make(map[string]*Format),
		byExt:   make(map[string]*Format),
	}
}

// IsInstalled reports whether a format with this name is installed.
func (r *Registry) IsInstalled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// InstallFormat registers a format. Installing a name that is already
// installed is a no-op. A media type or extension that is already bound to
// a different format is rejected with a *errs.ConfigError.
func (r *Registry) InstallFormat(name, mediaType string, factory ParserFactory, extensions ...string) error {
	if name == "" || factory == nil {
		return errs.NewConfigError(errs.CodeInvalidValue, name, "format needs a name and a parser")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return nil
	}

	f := &Format{Name: name, newParser: factory}
	if err := r.bindUnsafe(f, mediaType, extensions); err != nil {
		return err
	}
	r.byName[name] = f
	r.order = append(r.order, f)
	return nil
}

// Alias binds an extra media type and extensions to an installed format.
func (r *Registry) Alias(name, mediaType string, extensions ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byName[name]
	if !ok {
		return errs.NewConfigError(errs.CodeUnknownParser, name, "no installed format named %q", name)
	}
	return r.bindUnsafe(f, mediaType, extensions)
}

// SetWriter attaches a writer to an installed format.
func (r *Registry) SetWriter(name string, w Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.byName[name]
	if !ok {
		return errs.NewConfigError(errs.CodeUnknownParser, name, "no installed format named %q", name)
	}
	f.writer = w
	return nil
}

// bindUnsafe checks every key before binding any, so a conflict leaves the
// registry unchanged.
func (r *Registry) bindUnsafe(f *Format, mediaType string, extensions []string) error {
	mediaType = normalizeMediaType(mediaType)
	if mediaType != "" {
		if other, ok := r.byMedia[mediaType]; ok && other != f {
			return errs.NewConfigError(errs.CodeConflictingFormat, mediaType,
				"media type already bound to %s", other.Name)
		}
	}

	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = normalizeExtension(ext)
		if ext == "" {
			continue
		}
		if other, ok := r.byExt[ext]; ok && other != f {
			return errs.NewConfigError(errs.CodeConflictingFormat, ext,
				"extension already bound to %s", other.Name)
		}
		exts = append(exts, ext)
	}

	if mediaType != "" {
		r.byMedia[mediaType] = f
		if f.MediaType == "" {
			f.MediaType = mediaType
		}
	}
	for _, ext := range exts {
		if _, ok := r.byExt[ext]; !ok {
			f.Extensions = append(f.Extensions, ext)
		}
		r.byExt[ext] = f
	}
	return nil
}

// Lookup returns the format installed under name.
func (r *Registry) Lookup(name string) (*Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// Find returns the format whose name matches key ignoring case and
// punctuation, so "ntriples" finds "N-Triples" and "rdfxml" finds "RDF/XML".
func (r *Registry) Find(key string) (*Format, bool) {
	if f, ok := r.Lookup(key); ok {
		return f, true
	}
	folded := foldName(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.order {
		if foldName(f.Name) == folded {
			return f, true
		}
	}
	return nil, false
}

// ByMediaType returns the format bound to an exact media type. Parameters
// such as charset are ignored.
func (r *Registry) ByMediaType(mediaType string) (*Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byMedia[normalizeMediaType(mediaType)]
	return f, ok
}

// ByExtension returns the format bound to a filename suffix, with or
// without the leading dot.
func (r *Registry) ByExtension(ext string) (*Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byExt[normalizeExtension(ext)]
	return f, ok
}

// Formats returns the installed formats in install order.
func (r *Registry) Formats() []*Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Format(nil), r.order...)
}

// AcceptHeader lists the installed media types in install order with
// descending quality values, followed by */*;q=0.1.
func (r *Registry) AcceptHeader() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parts := make([]string, 0, len(r.order)+1)
	for i, f := range r.order {
		if f.MediaType == "" {
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.2 {
			q = 0.2
		}
		if i == 0 {
			parts = append(parts, f.MediaType)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", f.MediaType, q))
	}
	parts = append(parts, "*/*;q=0.1")
	return strings.Join(parts, ", ")
}

func normalizeMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func foldName(name string) string {
	var builder strings.Builder
	for _, ch := range strings.ToLower(name) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			builder.WriteRune(ch)
		}
	}
	return builder.String()
}
