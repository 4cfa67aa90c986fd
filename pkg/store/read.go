package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/coolbeans/dcatgraph/pkg/errs"
)

// Source is a readable byte stream with an associated locator.
type Source interface {
	Locator() string
	// Open acquires the stream. The caller must close it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Parser decodes a serialized graph. Relative identifiers are resolved
// against base. Blank node labels are document-local.
type Parser interface {
	Parse(ctx context.Context, r io.Reader, base string, emit func(Triple) error) error
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, r io.Reader, base string, emit func(Triple) error) error

func (f ParserFunc) Parse(ctx context.Context, r io.Reader, base string, emit func(Triple) error) error {
	return f(ctx, r, base, emit)
}

type readerSource struct {
	locator string
	r       io.Reader
}

// NewReaderSource wraps an already open stream. If r is an io.Closer it is
// closed after the read.
func NewReaderSource(locator string, r io.Reader) Source {
	return &readerSource{locator: locator, r: r}
}

// NewBytesSource wraps an in-memory document.
func NewBytesSource(locator string, data []byte) Source {
	return &readerSource{locator: locator, r: bytes.NewReader(data)}
}

func (s *readerSource) Locator() string { return s.locator }

func (s *readerSource) Open(context.Context) (io.ReadCloser, error) {
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}

// Read parses src and merges its triples into the graph. The source is
// always closed. The graph is changed only if the whole document parses:
// on any failure it is left as it was and a *errs.LoadError is returned.
//
// Blank nodes are relabeled under a scope unique to this call, so two reads
// of documents that both use _:b0 produce distinct nodes. An empty base
// falls back to the graph's base namespace.
func (ts *TripleStore) Read(ctx context.Context, src Source, base string, parser Parser) error {
	locator := src.Locator()
	if base == "" {
		base = ts.Base()
	}

	triples, err := ReadAll(ctx, src, base, parser)
	if err != nil {
		return err
	}

	if err := ts.BulkAdd(triples); err != nil {
		return errs.NewLoadError(errs.CodeParseFailed, locator, err, "rejected statements")
	}
	return nil
}

// ReadAll parses src into a slice without touching any graph. Blank nodes
// are scoped as in TripleStore.Read.
func ReadAll(ctx context.Context, src Source, base string, parser Parser) ([]Triple, error) {
	locator := src.Locator()

	rc, err := src.Open(ctx)
	if err != nil {
		var le *errs.LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, errs.NewLoadError(errs.CodeSourceUnreachable, locator, err, "open source")
	}
	defer rc.Close()

	scope := newBlankScope()
	var triples []Triple
	emit := func(t Triple) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.Subject = scope.relabel(t.Subject)
		t.Object = scope.relabel(t.Object)
		if !t.IsValid() {
			return errors.New("invalid statement " + t.String())
		}
		triples = append(triples, t)
		return nil
	}

	if err := parser.Parse(ctx, rc, base, emit); err != nil {
		var le *errs.LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, errs.NewLoadError(errs.CodeParseFailed, locator, err, "parse")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.NewLoadError(errs.CodeTimeout, locator, err, "read cancelled")
	}
	return triples, nil
}

type blankScope struct {
	prefix string
	labels map[string]Node
}

func newBlankScope() *blankScope {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &blankScope{
		prefix: "b" + strings.ReplaceAll(id.String(), "-", ""),
		labels: make(map[string]Node),
	}
}

func (s *blankScope) relabel(n Node) Node {
	if !n.IsBlank() {
		return n
	}
	if scoped, ok := s.labels[n.Value]; ok {
		return scoped
	}
	scoped := Blank(s.prefix + "x" + n.Value)
	s.labels[n.Value] = scoped
	return scoped
}

// ResolveIRI resolves ref against base. Absolute references and an empty
// base return ref unchanged.
func ResolveIRI(base, ref string) string {
	if base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	// A base ending in '#' is a namespace: "#x" and "x" both append to it.
	if strings.HasSuffix(base, "#") {
		return base + strings.TrimPrefix(ref, "#")
	}
	return b.ResolveReference(r).String()
}
