package format

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// TurtleParser reads Turtle documents: prefix and base directives in both
// the @-form and the SPARQL form, predicate and object lists, the "a"
// shorthand, blank node property lists, collections, long strings and
// numeric and boolean literals.
type TurtleParser struct{}

// NewTurtleParser is the ParserFactory for Turtle.
func NewTurtleParser() store.Parser { return TurtleParser{} }

func (TurtleParser) Parse(ctx context.Context, r io.Reader, base string, emit func(store.Triple) error) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	tokens, err := tokenizeTurtle(string(data))
	if err != nil {
		return err
	}
	p := &turtleParser{
		ctx:      ctx,
		tokens:   tokens,
		base:     base,
		prefixes: make(map[string]string),
		emit:     emit,
	}
	return p.parseDocument()
}

type turtleTokenKind int

const (
	tokEOF turtleTokenKind = iota
	tokIRI
	tokPName
	tokBlank
	tokString
	tokLangTag
	tokDatatypeMark
	tokInteger
	tokDecimal
	tokDouble
	tokWord
	tokPunct
)

type turtleToken struct {
	kind  turtleTokenKind
	value string
	line  int
}

func (t turtleToken) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return strconv.Quote(t.value)
}

type turtleScanner struct {
	input  string
	pos    int
	line   int
	tokens []turtleToken
}

func tokenizeTurtle(input string) ([]turtleToken, error) {
	s := &turtleScanner{input: input, line: 1}
	for {
		s.skipWSAndComments()
		if s.pos >= len(s.input) {
			s.tokens = append(s.tokens, turtleToken{kind: tokEOF, line: s.line})
			return s.tokens, nil
		}
		if err := s.next(); err != nil {
			return nil, fmt.Errorf("turtle: line %d: %w", s.line, err)
		}
	}
}

func (s *turtleScanner) emit(kind turtleTokenKind, value string) {
	s.tokens = append(s.tokens, turtleToken{kind: kind, value: value, line: s.line})
}

func (s *turtleScanner) skipWSAndComments() {
	for s.pos < len(s.input) {
		switch ch := s.input[s.pos]; {
		case ch == '\n':
			s.line++
			s.pos++
		case ch == ' ' || ch == '\t' || ch == '\r':
			s.pos++
		case ch == '#':
			for s.pos < len(s.input) && s.input[s.pos] != '\n' {
				s.pos++
			}
		default:
			return
		}
	}
}

func (s *turtleScanner) next() error {
	ch := s.input[s.pos]
	rest := s.input[s.pos:]

	switch {
	case ch == '<':
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return fmt.Errorf("unterminated IRI")
		}
		value, err := unescapeNT(rest[1:end])
		if err != nil {
			return err
		}
		s.pos += end + 1
		s.emit(tokIRI, value)
	case strings.HasPrefix(rest, `"""`) || strings.HasPrefix(rest, `'''`):
		return s.scanLongString(rest[:3])
	case ch == '"' || ch == '\'':
		return s.scanString(ch)
	case strings.HasPrefix(rest, "^^"):
		s.pos += 2
		s.emit(tokDatatypeMark, "^^")
	case ch == '@':
		s.pos++
		start := s.pos
		for s.pos < len(s.input) && (isAlnum(s.input[s.pos]) || s.input[s.pos] == '-') {
			s.pos++
		}
		if start == s.pos {
			return fmt.Errorf("empty language tag or directive")
		}
		word := s.input[start:s.pos]
		if word == "prefix" || word == "base" {
			s.emit(tokWord, "@"+word)
		} else {
			s.emit(tokLangTag, word)
		}
	case strings.HasPrefix(rest, "_:"):
		s.pos += 2
		start := s.pos
		s.scanNameChars(false)
		if start == s.pos {
			return fmt.Errorf("blank node label missing")
		}
		s.emit(tokBlank, s.input[start:s.pos])
	case strings.ContainsRune(".;,[]()", rune(ch)):
		if ch == '.' && s.pos+1 < len(s.input) && isDigit(s.input[s.pos+1]) {
			return s.scanNumber()
		}
		s.pos++
		s.emit(tokPunct, string(ch))
	case isDigit(ch) || ch == '+' || ch == '-':
		return s.scanNumber()
	default:
		return s.scanWord()
	}
	return nil
}

func (s *turtleScanner) scanString(quote byte) error {
	s.pos++
	start := s.pos
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		if ch == '\\' {
			s.pos += 2
			continue
		}
		if ch == '\n' {
			return fmt.Errorf("newline in short string")
		}
		if ch == quote {
			value, err := unescapeNT(s.input[start:s.pos])
			if err != nil {
				return err
			}
			s.pos++
			s.emit(tokString, value)
			return nil
		}
		s.pos++
	}
	return fmt.Errorf("unterminated string")
}

func (s *turtleScanner) scanLongString(delim string) error {
	s.pos += 3
	start := s.pos
	for s.pos < len(s.input) {
		if s.input[s.pos] == '\\' {
			s.pos += 2
			continue
		}
		if strings.HasPrefix(s.input[s.pos:], delim) {
			// A run of more than three quotes ends with the last three.
			for strings.HasPrefix(s.input[s.pos+1:], delim) {
				s.pos++
			}
			raw := s.input[start:s.pos]
			value, err := unescapeNT(raw)
			if err != nil {
				return err
			}
			s.line += strings.Count(raw, "\n")
			s.pos += 3
			s.emit(tokString, value)
			return nil
		}
		s.pos++
	}
	return fmt.Errorf("unterminated long string")
}

func (s *turtleScanner) scanNumber() error {
	start := s.pos
	if s.input[s.pos] == '+' || s.input[s.pos] == '-' {
		s.pos++
	}
	kind := tokInteger
	for s.pos < len(s.input) && isDigit(s.input[s.pos]) {
		s.pos++
	}
	if s.pos+1 < len(s.input) && s.input[s.pos] == '.' && isDigit(s.input[s.pos+1]) {
		kind = tokDecimal
		s.pos++
		for s.pos < len(s.input) && isDigit(s.input[s.pos]) {
			s.pos++
		}
	}
	if s.pos < len(s.input) && (s.input[s.pos] == 'e' || s.input[s.pos] == 'E') {
		kind = tokDouble
		s.pos++
		if s.pos < len(s.input) && (s.input[s.pos] == '+' || s.input[s.pos] == '-') {
			s.pos++
		}
		digits := s.pos
		for s.pos < len(s.input) && isDigit(s.input[s.pos]) {
			s.pos++
		}
		if digits == s.pos {
			return fmt.Errorf("malformed exponent")
		}
	}
	lexical := s.input[start:s.pos]
	if lexical == "+" || lexical == "-" {
		return fmt.Errorf("unexpected %q", lexical)
	}
	s.emit(kind, lexical)
	return nil
}

// scanWord reads a prefixed name, a bare keyword (a, true, false, PREFIX,
// BASE) or fails.
func (s *turtleScanner) scanWord() error {
	start := s.pos
	s.scanNameChars(false)
	if s.pos < len(s.input) && s.input[s.pos] == ':' {
		s.pos++
		s.scanNameChars(true)
		s.emit(tokPName, s.input[start:s.pos])
		return nil
	}
	if start == s.pos {
		return fmt.Errorf("unexpected character %q", s.input[s.pos])
	}
	s.emit(tokWord, s.input[start:s.pos])
	return nil
}

// scanNameChars consumes name characters. Dots are allowed inside a name
// but not at its end, colons only in local names, and backslash escapes are
// kept for the parser.
func (s *turtleScanner) scanNameChars(local bool) {
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		switch {
		case ch == '\\' && local && s.pos+1 < len(s.input):
			s.pos += 2
		case ch >= 0x80 || isAlnum(ch) || ch == '_' || ch == '-' || (local && ch == '%'):
			s.pos++
		case ch == ':' && local:
			s.pos++
		case ch == '.':
			if s.pos+1 < len(s.input) && isNameContinuation(s.input[s.pos+1]) {
				s.pos++
				continue
			}
			return
		default:
			return
		}
	}
}

func isNameContinuation(ch byte) bool {
	return ch >= 0x80 || isAlnum(ch) || ch == '_' || ch == '-' || ch == ':' || ch == '%'
}

func isAlnum(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

type turtleParser struct {
	ctx      context.Context
	tokens   []turtleToken
	pos      int
	base     string
	prefixes map[string]string
	emit     func(store.Triple) error
	genID    int
}

func (p *turtleParser) peek() turtleToken { return p.tokens[p.pos] }

func (p *turtleParser) next() turtleToken {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *turtleParser) isPunct(value string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.value == value
}

func (p *turtleParser) expectPunct(value string) error {
	tok := p.next()
	if tok.kind != tokPunct || tok.value != value {
		return p.errorf(tok, "expected %q, found %s", value, tok)
	}
	return nil
}

func (p *turtleParser) errorf(tok turtleToken, format string, args ...any) error {
	return fmt.Errorf("turtle: line %d: %s", tok.line, fmt.Sprintf(format, args...))
}

func (p *turtleParser) parseDocument() error {
	for p.peek().kind != tokEOF {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		tok := p.peek()
		if tok.kind == tokWord {
			switch strings.ToUpper(strings.TrimPrefix(tok.value, "@")) {
			case "PREFIX", "BASE":
				if err := p.parseDirective(); err != nil {
					return err
				}
				continue
			}
		}
		if err := p.parseTriples(); err != nil {
			return err
		}
		if err := p.expectPunct("."); err != nil {
			return err
		}
	}
	return nil
}

func (p *turtleParser) parseDirective() error {
	tok := p.next()
	atForm := strings.HasPrefix(tok.value, "@")
	keyword := strings.ToUpper(strings.TrimPrefix(tok.value, "@"))

	if keyword == "PREFIX" {
		name := p.next()
		if name.kind != tokPName || !strings.HasSuffix(name.value, ":") {
			return p.errorf(name, "expected prefix name, found %s", name)
		}
		iri := p.next()
		if iri.kind != tokIRI {
			return p.errorf(iri, "expected namespace IRI, found %s", iri)
		}
		p.prefixes[strings.TrimSuffix(name.value, ":")] = store.ResolveIRI(p.base, iri.value)
	} else {
		iri := p.next()
		if iri.kind != tokIRI {
			return p.errorf(iri, "expected base IRI, found %s", iri)
		}
		p.base = store.ResolveIRI(p.base, iri.value)
	}

	if atForm {
		return p.expectPunct(".")
	}
	return nil
}

func (p *turtleParser) parseTriples() error {
	if p.isPunct("[") {
		subject, err := p.parseBlankPropertyList()
		if err != nil {
			return err
		}
		if p.isPunct(".") {
			return nil
		}
		return p.parsePredicateObjectList(subject)
	}

	subject, err := p.parseSubject()
	if err != nil {
		return err
	}
	return p.parsePredicateObjectList(subject)
}

func (p *turtleParser) parseSubject() (store.Node, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokPunct && tok.value == "(":
		return p.parseCollection()
	case tok.kind == tokIRI || tok.kind == tokPName || tok.kind == tokBlank:
		p.next()
		return p.resource(tok)
	default:
		return store.Node{}, p.errorf(tok, "expected subject, found %s", tok)
	}
}

func (p *turtleParser) parsePredicateObjectList(subject store.Node) error {
	for {
		predicate, err := p.parseVerb()
		if err != nil {
			return err
		}
		if err := p.parseObjectList(subject, predicate); err != nil {
			return err
		}
		if !p.isPunct(";") {
			return nil
		}
		for p.isPunct(";") {
			p.next()
		}
		if p.isPunct(".") || p.isPunct("]") || p.peek().kind == tokEOF {
			return nil
		}
	}
}

func (p *turtleParser) parseVerb() (store.Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		if tok.value == "a" {
			return store.RDFType, nil
		}
	case tokIRI, tokPName:
		return p.resource(tok)
	}
	return store.Node{}, p.errorf(tok, "expected predicate, found %s", tok)
}

func (p *turtleParser) parseObjectList(subject, predicate store.Node) error {
	for {
		object, err := p.parseObject()
		if err != nil {
			return err
		}
		if err := p.emit(store.NewTriple(subject, predicate, object)); err != nil {
			return err
		}
		if !p.isPunct(",") {
			return nil
		}
		p.next()
	}
}

func (p *turtleParser) parseObject() (store.Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokIRI, tokPName, tokBlank:
		p.next()
		return p.resource(tok)
	case tokString:
		p.next()
		return p.parseLiteralSuffix(tok.value)
	case tokInteger:
		p.next()
		return store.TypedLiteral(tok.value, store.XSDInteger), nil
	case tokDecimal:
		p.next()
		return store.TypedLiteral(tok.value, store.XSDDecimal), nil
	case tokDouble:
		p.next()
		return store.TypedLiteral(tok.value, store.XSDDouble), nil
	case tokWord:
		if tok.value == "true" || tok.value == "false" {
			p.next()
			return store.TypedLiteral(tok.value, store.XSDBoolean), nil
		}
	case tokPunct:
		switch tok.value {
		case "[":
			return p.parseBlankPropertyList()
		case "(":
			return p.parseCollection()
		}
	}
	return store.Node{}, p.errorf(tok, "expected object, found %s", tok)
}

func (p *turtleParser) parseLiteralSuffix(lexical string) (store.Node, error) {
	switch p.peek().kind {
	case tokLangTag:
		return store.LangLiteral(lexical, p.next().value), nil
	case tokDatatypeMark:
		p.next()
		dt := p.next()
		if dt.kind != tokIRI && dt.kind != tokPName {
			return store.Node{}, p.errorf(dt, "expected datatype IRI, found %s", dt)
		}
		iri, err := p.resource(dt)
		if err != nil {
			return store.Node{}, err
		}
		return store.TypedLiteral(lexical, iri.Value), nil
	default:
		return store.Literal(lexical), nil
	}
}

func (p *turtleParser) parseBlankPropertyList() (store.Node, error) {
	if err := p.expectPunct("["); err != nil {
		return store.Node{}, err
	}
	node := p.freshBlank()
	if p.isPunct("]") {
		p.next()
		return node, nil
	}
	if err := p.parsePredicateObjectList(node); err != nil {
		return store.Node{}, err
	}
	return node, p.expectPunct("]")
}

func (p *turtleParser) parseCollection() (store.Node, error) {
	if err := p.expectPunct("("); err != nil {
		return store.Node{}, err
	}
	var items []store.Node
	for !p.isPunct(")") {
		if p.peek().kind == tokEOF {
			return store.Node{}, p.errorf(p.peek(), "unterminated collection")
		}
		item, err := p.parseObject()
		if err != nil {
			return store.Node{}, err
		}
		items = append(items, item)
	}
	p.next()

	head := rdfNil
	for i := len(items) - 1; i >= 0; i-- {
		cell := p.freshBlank()
		if err := p.emit(store.NewTriple(cell, rdfFirst, items[i])); err != nil {
			return store.Node{}, err
		}
		if err := p.emit(store.NewTriple(cell, rdfRest, head)); err != nil {
			return store.Node{}, err
		}
		head = cell
	}
	return head, nil
}

var (
	rdfFirst = store.IRI(store.NamespaceRDF + "first")
	rdfRest  = store.IRI(store.NamespaceRDF + "rest")
	rdfNil   = store.IRI(store.NamespaceRDF + "nil")
)

// freshBlank labels generated nodes with a "g" prefix and document labels
// with a "d" prefix so the two never collide.
func (p *turtleParser) freshBlank() store.Node {
	p.genID++
	return store.Blank(fmt.Sprintf("g%d", p.genID))
}

func (p *turtleParser) resource(tok turtleToken) (store.Node, error) {
	switch tok.kind {
	case tokIRI:
		return store.IRI(store.ResolveIRI(p.base, tok.value)), nil
	case tokBlank:
		return store.Blank("d" + tok.value), nil
	case tokPName:
		i := strings.IndexByte(tok.value, ':')
		prefix, local := tok.value[:i], tok.value[i+1:]
		ns, ok := p.prefixes[prefix]
		if !ok {
			return store.Node{}, p.errorf(tok, "undeclared prefix %q", prefix)
		}
		return store.IRI(ns + unescapeLocal(local)), nil
	}
	return store.Node{}, p.errorf(tok, "expected IRI, found %s", tok)
}

// unescapeLocal removes the backslash from reserved-character escapes in
// local names; percent escapes are kept as written.
func unescapeLocal(local string) string {
	if !strings.ContainsRune(local, '\\') {
		return local
	}
	var builder strings.Builder
	for i := 0; i < len(local); i++ {
		if local[i] == '\\' && i+1 < len(local) {
			i++
		}
		builder.WriteByte(local[i])
	}
	return builder.String()
}
