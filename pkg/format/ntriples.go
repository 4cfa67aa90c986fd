package format

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// NTriplesParser reads line-based N-Triples. A fourth graph term, as in
// N-Quads, is accepted and ignored so that quad output from other tools
// can be merged into one graph.
type NTriplesParser struct{}

// NewNTriplesParser is the ParserFactory for N-Triples.
func NewNTriplesParser() store.Parser { return NTriplesParser{} }

func (NTriplesParser) Parse(ctx context.Context, r io.Reader, base string, emit func(store.Triple) error) error {
	reader := bufio.NewReader(r)
	lineNumber := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if line == "" && err == io.EOF {
			return nil
		}
		lineNumber++

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			triple, perr := parseNTLine(trimmed, base)
			if perr != nil {
				return fmt.Errorf("ntriples: line %d: %w", lineNumber, perr)
			}
			if eerr := emit(triple); eerr != nil {
				return eerr
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}

func parseNTLine(line, base string) (store.Triple, error) {
	cursor := &ntCursor{input: line, base: base}

	subject, err := cursor.parseTerm(false)
	if err != nil {
		return store.Triple{}, err
	}
	predicate, err := cursor.parseIRI()
	if err != nil {
		return store.Triple{}, err
	}
	object, err := cursor.parseTerm(true)
	if err != nil {
		return store.Triple{}, err
	}

	cursor.skipWS()
	if cursor.pos < len(cursor.input) && cursor.input[cursor.pos] != '.' {
		if _, err := cursor.parseTerm(false); err != nil {
			return store.Triple{}, fmt.Errorf("graph label: %w", err)
		}
	}
	if !cursor.consume('.') {
		return store.Triple{}, cursor.errorf("expected '.' at end of statement")
	}
	cursor.skipWS()
	if cursor.pos < len(cursor.input) && cursor.input[cursor.pos] != '#' {
		return store.Triple{}, cursor.errorf("trailing content after '.'")
	}

	return store.NewTriple(subject, predicate, object), nil
}

type ntCursor struct {
	input string
	pos   int
	base  string
}

func (c *ntCursor) skipWS() {
	for c.pos < len(c.input) {
		switch c.input[c.pos] {
		case ' ', '\t', '\r', '\n':
			c.pos++
		default:
			return
		}
	}
}

func (c *ntCursor) consume(ch byte) bool {
	c.skipWS()
	if c.pos < len(c.input) && c.input[c.pos] == ch {
		c.pos++
		return true
	}
	return false
}

func (c *ntCursor) parseTerm(allowLiteral bool) (store.Node, error) {
	c.skipWS()
	if c.pos >= len(c.input) {
		return store.Node{}, c.errorf("unexpected end of line")
	}
	switch {
	case c.input[c.pos] == '<':
		return c.parseIRI()
	case strings.HasPrefix(c.input[c.pos:], "_:"):
		return c.parseBlankNode()
	case c.input[c.pos] == '"':
		if !allowLiteral {
			return store.Node{}, c.errorf("literal not allowed here")
		}
		return c.parseLiteral()
	default:
		return store.Node{}, c.errorf("unexpected token at column %d", c.pos+1)
	}
}

func (c *ntCursor) parseIRI() (store.Node, error) {
	c.skipWS()
	if !c.consume('<') {
		return store.Node{}, c.errorf("expected IRI")
	}
	start := c.pos
	for c.pos < len(c.input) && c.input[c.pos] != '>' {
		c.pos++
	}
	if c.pos >= len(c.input) {
		return store.Node{}, c.errorf("unterminated IRI")
	}
	value, err := unescapeNT(c.input[start:c.pos])
	if err != nil {
		return store.Node{}, err
	}
	c.pos++
	return store.IRI(store.ResolveIRI(c.base, value)), nil
}

func (c *ntCursor) parseBlankNode() (store.Node, error) {
	c.pos += 2
	start := c.pos
	for c.pos < len(c.input) && !isTermDelimiter(c.input[c.pos]) {
		c.pos++
	}
	if start == c.pos {
		return store.Node{}, c.errorf("blank node id missing")
	}
	return store.Blank(c.input[start:c.pos]), nil
}

func (c *ntCursor) parseLiteral() (store.Node, error) {
	c.pos++ // opening quote
	start := c.pos
	for c.pos < len(c.input) {
		ch := c.input[c.pos]
		if ch == '\\' {
			c.pos += 2
			continue
		}
		if ch == '"' {
			break
		}
		c.pos++
	}
	if c.pos >= len(c.input) {
		return store.Node{}, c.errorf("unterminated literal")
	}
	lexical, err := unescapeNT(c.input[start:c.pos])
	if err != nil {
		return store.Node{}, err
	}
	c.pos++ // closing quote

	if c.pos < len(c.input) && c.input[c.pos] == '@' {
		c.pos++
		start := c.pos
		for c.pos < len(c.input) && !isTermDelimiter(c.input[c.pos]) {
			c.pos++
		}
		if start == c.pos {
			return store.Node{}, c.errorf("empty language tag")
		}
		return store.LangLiteral(lexical, c.input[start:c.pos]), nil
	}
	if strings.HasPrefix(c.input[c.pos:], "^^") {
		c.pos += 2
		dt, err := c.parseIRI()
		if err != nil {
			return store.Node{}, err
		}
		return store.TypedLiteral(lexical, dt.Value), nil
	}
	return store.Literal(lexical), nil
}

func (c *ntCursor) errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

func isTermDelimiter(ch byte) bool {
	switch ch {
	case ' ', '\t', '\r', '\n', '.', ',', ';', ')', ']':
		return true
	default:
		return false
	}
}

// unescapeNT decodes the string escapes shared by N-Triples and Turtle,
// including \uXXXX and \UXXXXXXXX.
func unescapeNT(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}

	var builder strings.Builder
	builder.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' {
			builder.WriteByte(ch)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("unterminated escape")
		}
		i++
		switch s[i] {
		case 'n':
			builder.WriteByte('\n')
		case 't':
			builder.WriteByte('\t')
		case 'r':
			builder.WriteByte('\r')
		case 'b':
			builder.WriteByte('\b')
		case 'f':
			builder.WriteByte('\f')
		case '"', '\'', '\\':
			builder.WriteByte(s[i])
		case 'u', 'U':
			width := 4
			if s[i] == 'U' {
				width = 8
			}
			if i+1+width > len(s) {
				return "", fmt.Errorf("short unicode escape")
			}
			code, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				return "", fmt.Errorf("invalid unicode escape %q", s[i-1:i+1+width])
			}
			builder.WriteRune(rune(code))
			i += width
		default:
			return "", fmt.Errorf("invalid escape \\%c", s[i])
		}
	}
	return builder.String(), nil
}

// NTriplesWriter writes one statement per line in subject order.
type NTriplesWriter struct{}

func (NTriplesWriter) Write(w io.Writer, g store.Graph, _ map[string]string) error {
	bw := bufio.NewWriter(w)
	for _, t := range g.Find(store.Node{}, store.Node{}, store.Node{}) {
		if _, err := bw.WriteString(t.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
