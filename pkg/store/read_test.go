package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/coolbeans/dcatgraph/pkg/errs"
)

// lineParser reads "s p o" lines of bare local names resolved against base.
// A local name starting with "_:" is a blank node; "!" fails the parse.
var lineParser = ParserFunc(func(ctx context.Context, r io.Reader, base string, emit func(Triple) error) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 || fields[0] == "!" {
			return fmt.Errorf("line %d: malformed", line)
		}
		term := func(s string) Node {
			if strings.HasPrefix(s, "_:") {
				return Blank(s[2:])
			}
			return IRI(ResolveIRI(base, s))
		}
		if err := emit(NewTriple(term(fields[0]), term(fields[1]), term(fields[2]))); err != nil {
			return err
		}
	}
	return scanner.Err()
})

type trackingSource struct {
	data   string
	closed bool
	err    error
}

func (s *trackingSource) Locator() string { return "mem:test" }

func (s *trackingSource) Open(context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &trackingCloser{Reader: strings.NewReader(s.data), src: s}, nil
}

type trackingCloser struct {
	io.Reader
	src *trackingSource
}

func (c *trackingCloser) Close() error {
	c.src.closed = true
	return nil
}

func TestRead_MergesAndCloses(t *testing.T) {
	g := NewNamedGraph(GraphDataset, "http://example.org/")
	_ = g.Add(NewTriple(ex("me"), ex("knows"), ex("ross")))

	src := &trackingSource{data: "me knows joey\nme knows ross\n"}
	if err := g.Read(context.Background(), src, "", lineParser); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !src.closed {
		t.Error("source was not closed")
	}
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2 (merged, set semantics)", g.Len())
	}
	if !g.Contains(NewTriple(ex("me"), ex("knows"), ex("joey"))) {
		t.Error("relative names should resolve against the graph base")
	}
}

func TestRead_ParseFailureLeavesGraphUnchanged(t *testing.T) {
	g := NewNamedGraph(GraphDataset, "http://example.org/")
	src := &trackingSource{data: "me knows joey\n! ! !\n"}

	err := g.Read(context.Background(), src, "", lineParser)
	if err == nil {
		t.Fatal("expected error")
	}
	if !src.closed {
		t.Error("source was not closed after parse failure")
	}
	if errs.CodeOf(err) != errs.CodeParseFailed {
		t.Errorf("code = %q, want parse_failed", errs.CodeOf(err))
	}
	if g.Len() != 0 {
		t.Errorf("graph has %d triples after failed read", g.Len())
	}
}

func TestRead_OpenFailure(t *testing.T) {
	g := NewTripleStore()
	src := &trackingSource{err: errors.New("connection refused")}

	err := g.Read(context.Background(), src, exNS, lineParser)
	le, ok := errs.AsLoadError(err)
	if !ok {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.Code != errs.CodeSourceUnreachable || le.Locator != "mem:test" {
		t.Errorf("got %+v", le)
	}
}

func TestRead_BlankNodesScopedPerRead(t *testing.T) {
	g := NewNamedGraph("", exNS)
	doc := "_:b0 name _:b1\n"

	for i := 0; i < 2; i++ {
		if err := g.Read(context.Background(), NewBytesSource("mem:doc", []byte(doc)), "", lineParser); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}

	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2 distinct blank statements", g.Len())
	}
	for _, tr := range g.All() {
		if !tr.Subject.IsBlank() || tr.Subject.Value == "b0" {
			t.Errorf("subject %s was not relabeled", tr.Subject)
		}
	}
}

func TestRead_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewTripleStore()
	err := g.Read(ctx, NewBytesSource("mem:doc", []byte("a b c\n")), exNS, lineParser)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if g.Len() != 0 {
		t.Errorf("Len = %d after cancelled read", g.Len())
	}
}

func TestResolveIRI(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://dcat.query.defaultns#", "me", "http://dcat.query.defaultns#me"},
		{"http://dcat.query.defaultns#", "#me", "http://dcat.query.defaultns#me"},
		{"http://example.org/data/", "friends.ttl", "http://example.org/data/friends.ttl"},
		{"http://example.org/data/cat.ttl", "../x", "http://example.org/x"},
		{"http://example.org/", "http://other.org/y", "http://other.org/y"},
		{"", "rel", "rel"},
	}

	for _, tt := range tests {
		if got := ResolveIRI(tt.base, tt.ref); got != tt.want {
			t.Errorf("ResolveIRI(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

func TestDataset(t *testing.T) {
	d := NewDataset()

	if _, err := d.CreateGraph(GraphCatalog, ""); err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}
	if _, err := d.CreateGraph(GraphSchema, ""); err != nil {
		t.Fatalf("CreateGraph failed: %v", err)
	}
	if _, err := d.CreateGraph(GraphCatalog, ""); err == nil {
		t.Error("expected error for duplicate graph name")
	}

	names := d.Names()
	if len(names) != 2 || names[0] != GraphCatalog || names[1] != GraphSchema {
		t.Errorf("Names() = %v", names)
	}

	if !d.DropGraph(GraphSchema) {
		t.Error("DropGraph should report existing graph")
	}
	if _, ok := d.Graph(GraphSchema); ok {
		t.Error("dropped graph still present")
	}
}

func TestUnion(t *testing.T) {
	a := NewTripleStore()
	b := NewTripleStore()
	_ = a.Add(NewTriple(ex("x"), RDFType, FOAFPerson))
	_ = b.Add(NewTriple(ex("x"), RDFType, FOAFPerson))
	_ = b.Add(NewTriple(ex("y"), RDFType, FOAFPerson))

	u := Union(a, b)
	if u.Len() != 2 {
		t.Errorf("Len = %d, want 2", u.Len())
	}
	if !u.Contains(NewTriple(ex("y"), RDFType, FOAFPerson)) {
		t.Error("union should contain member triples")
	}

	gen := u.Generation()
	_ = a.Add(NewTriple(ex("z"), RDFType, FOAFPerson))
	if u.Generation() == gen {
		t.Error("union generation should follow member mutations")
	}
}
