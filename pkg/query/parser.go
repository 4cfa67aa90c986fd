package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// ParseQuery parses a SELECT query. Syntax errors fail with a
// *errs.QueryError of code syntax; a prefixed name whose prefix is not
// declared fails with code unresolved_prefix; a projected or ordering
// variable that no pattern mentions fails with code unbound_projection.
func ParseQuery(text string) (*Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.NewQueryError(errs.CodeSyntax, text, nil, "empty query")
	}

	tokens, err := tokenize(text)
	if err != nil {
		return nil, errs.NewQueryError(errs.CodeSyntax, text, err, "%v", err)
	}

	p := &queryParser{
		text:   text,
		tokens: tokens,
		query: &Query{
			Text:     text,
			Limit:    -1,
			Prefixes: make(map[string]string),
		},
	}
	if err := p.parseSelectQuery(); err != nil {
		return nil, err
	}
	if err := p.query.validate(); err != nil {
		return nil, err
	}
	return p.query, nil
}

type queryParser struct {
	text   string
	tokens []token
	pos    int
	base   string
	query  *Query
}

func (p *queryParser) peek() token {
	return p.tokens[p.pos]
}

func (p *queryParser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *queryParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *queryParser) isPunct(text string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == text
}

func (p *queryParser) isKeyword(keyword string) bool {
	tok := p.peek()
	return tok.kind == tokWord && strings.EqualFold(tok.text, keyword)
}

func (p *queryParser) expectPunct(text string) error {
	if !p.isPunct(text) {
		return p.errorf(p.peek(), "expected %q, found %s", text, p.peek())
	}
	p.next()
	return nil
}

func (p *queryParser) errorf(at token, format string, args ...any) error {
	return errs.NewQueryError(errs.CodeSyntax, p.text, nil, "line %d: %s", at.line, fmt.Sprintf(format, args...))
}

// parseSelectQuery parses prologue, projection, WHERE group and solution
// modifiers.
func (p *queryParser) parseSelectQuery() error {
	if err := p.parsePrologue(); err != nil {
		return err
	}

	if !p.isKeyword("SELECT") {
		return p.errorf(p.peek(), "unsupported query form %s: only SELECT queries are supported", p.peek())
	}
	p.next()

	if p.isKeyword("DISTINCT") || p.isKeyword("REDUCED") {
		p.next()
		p.query.Distinct = true
	}

	if p.isPunct("*") {
		p.next()
		p.query.Star = true
	} else {
		for p.peek().kind == tokVar {
			name := p.next().text
			if !slices.Contains(p.query.Variables, name) {
				p.query.Variables = append(p.query.Variables, name)
			}
		}
		if len(p.query.Variables) == 0 {
			return p.errorf(p.peek(), "no variables found in SELECT clause")
		}
	}

	if p.isKeyword("WHERE") {
		p.next()
	}
	if !p.isPunct("{") {
		return p.errorf(p.peek(), "invalid WHERE clause: expected '{', found %s", p.peek())
	}

	where := &group{}
	if err := p.parseGroup(where, true); err != nil {
		return err
	}
	p.query.Where = where.patterns
	p.query.Filters = where.filters
	p.query.Optional = where.optional

	if err := p.parseSolutionModifiers(); err != nil {
		return err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return p.errorf(tok, "unexpected %s after query", tok)
	}
	return nil
}

// parsePrologue reads PREFIX and BASE declarations. Later declarations of a
// prefix replace earlier ones, so a query body may override the preamble.
func (p *queryParser) parsePrologue() error {
	for {
		switch {
		case p.isKeyword("PREFIX"):
			p.next()
			name := p.next()
			if name.kind != tokPName || !strings.HasSuffix(name.text, ":") || strings.Count(name.text, ":") != 1 {
				return p.errorf(name, "expected prefix name, found %s", name)
			}
			iri := p.next()
			if iri.kind != tokIRI {
				return p.errorf(iri, "expected namespace IRI after %s, found %s", name.text, iri)
			}
			p.query.Prefixes[strings.TrimSuffix(name.text, ":")] = store.ResolveIRI(p.base, iri.text)
		case p.isKeyword("BASE"):
			p.next()
			iri := p.next()
			if iri.kind != tokIRI {
				return p.errorf(iri, "expected base IRI, found %s", iri)
			}
			p.base = store.ResolveIRI(p.base, iri.text)
		default:
			return nil
		}
	}
}

type group struct {
	patterns []TriplePattern
	filters  []Filter
	optional []OptionalGroup
}

// parseGroup parses a braced group graph pattern. Only the top-level group
// may contain OPTIONAL blocks.
func (p *queryParser) parseGroup(g *group, allowOptional bool) error {
	if err := p.expectPunct("{"); err != nil {
		return err
	}

	for {
		tok := p.peek()
		switch {
		case tok.kind == tokEOF:
			return p.errorf(tok, "unterminated group: missing '}'")
		case p.isPunct("}"):
			p.next()
			return nil
		case p.isPunct("."):
			p.next()
		case p.isKeyword("OPTIONAL"):
			if !allowOptional {
				return p.errorf(tok, "nested OPTIONAL is not supported")
			}
			p.next()
			inner := &group{}
			if err := p.parseGroup(inner, false); err != nil {
				return err
			}
			if len(inner.patterns) == 0 {
				return p.errorf(tok, "OPTIONAL group has no triple patterns")
			}
			g.optional = append(g.optional, OptionalGroup{Patterns: inner.patterns, Filters: inner.filters})
		case p.isKeyword("FILTER"):
			p.next()
			filter, err := p.parseConstraint()
			if err != nil {
				return err
			}
			g.filters = append(g.filters, filter)
		case p.isPunct("{"):
			return p.errorf(tok, "nested groups are not supported")
		default:
			if err := p.parseTriples(g); err != nil {
				return err
			}
			if !p.isPunct(".") && !p.isPunct("}") && !p.isKeyword("OPTIONAL") && !p.isKeyword("FILTER") {
				return p.errorf(p.peek(), "expected '.' or '}' after triple pattern, found %s", p.peek())
			}
		}
	}
}

// parseTriples parses one subject with its predicate-object list, handling
// ';' and ',' continuations.
func (p *queryParser) parseTriples(g *group) error {
	subject, err := p.parseTerm(positionSubject)
	if err != nil {
		return err
	}

	for {
		predicate, err := p.parseTerm(positionPredicate)
		if err != nil {
			return err
		}
		for {
			object, err := p.parseTerm(positionObject)
			if err != nil {
				return err
			}
			g.patterns = append(g.patterns, TriplePattern{Subject: subject, Predicate: predicate, Object: object})
			if !p.isPunct(",") {
				break
			}
			p.next()
		}

		if !p.isPunct(";") {
			return nil
		}
		for p.isPunct(";") {
			p.next()
		}
		if p.isPunct(".") || p.isPunct("}") {
			return nil
		}
	}
}

type termPosition int

const (
	positionSubject termPosition = iota
	positionPredicate
	positionObject
)

func (pos termPosition) String() string {
	switch pos {
	case positionSubject:
		return "subject"
	case positionPredicate:
		return "predicate"
	default:
		return "object"
	}
}

func (p *queryParser) parseTerm(pos termPosition) (Term, error) {
	tok := p.peek()
	switch tok.kind {
	case tokVar:
		p.next()
		return Variable(tok.text), nil
	case tokIRI:
		p.next()
		return Fixed(store.IRI(store.ResolveIRI(p.base, tok.text))), nil
	case tokPName:
		p.next()
		iri, err := p.expandPrefixed(tok)
		if err != nil {
			return Term{}, err
		}
		return Fixed(store.IRI(iri)), nil
	case tokBlank:
		if pos == positionPredicate {
			return Term{}, p.errorf(tok, "blank node not allowed in predicate position")
		}
		p.next()
		return Variable(blankVarPrefix + tok.text), nil
	case tokWord:
		if pos == positionPredicate && tok.text == "a" {
			p.next()
			return Fixed(store.RDFType), nil
		}
	}

	if pos != positionObject {
		return Term{}, p.errorf(tok, "expected %s, found %s", pos, tok)
	}
	n, err := p.parseLiteral()
	if err != nil {
		return Term{}, err
	}
	return Fixed(n), nil
}

// parseLiteral parses a string, numeric or boolean literal.
func (p *queryParser) parseLiteral() (store.Node, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokString:
		p.next()
		if p.peek().kind == tokLangTag {
			return store.LangLiteral(tok.text, p.next().text), nil
		}
		if p.isPunct("^^") {
			p.next()
			dt := p.next()
			switch dt.kind {
			case tokIRI:
				return store.TypedLiteral(tok.text, store.ResolveIRI(p.base, dt.text)), nil
			case tokPName:
				iri, err := p.expandPrefixed(dt)
				if err != nil {
					return store.Node{}, err
				}
				return store.TypedLiteral(tok.text, iri), nil
			default:
				return store.Node{}, p.errorf(dt, "expected datatype IRI, found %s", dt)
			}
		}
		return store.Literal(tok.text), nil

	case tok.kind == tokNumber:
		p.next()
		return numericLiteral(tok.text), nil

	case tok.kind == tokPunct && (tok.text == "-" || tok.text == "+") && p.peekAt(1).kind == tokNumber:
		p.next()
		number := p.next()
		return numericLiteral(tok.text + number.text), nil

	case tok.kind == tokWord && (tok.text == "true" || tok.text == "false"):
		p.next()
		return store.TypedLiteral(tok.text, store.XSDBoolean), nil
	}
	return store.Node{}, p.errorf(tok, "expected term, found %s", tok)
}

func numericLiteral(lexical string) store.Node {
	switch {
	case strings.ContainsAny(lexical, "eE"):
		return store.TypedLiteral(lexical, store.XSDDouble)
	case strings.Contains(lexical, "."):
		return store.TypedLiteral(lexical, store.XSDDecimal)
	default:
		return store.TypedLiteral(lexical, store.XSDInteger)
	}
}

// expandPrefixed expands a prefixed name using the declared prefixes.
func (p *queryParser) expandPrefixed(tok token) (string, error) {
	colon := strings.IndexByte(tok.text, ':')
	prefix, local := tok.text[:colon], tok.text[colon+1:]
	namespace, ok := p.query.Prefixes[prefix]
	if !ok {
		return "", errs.NewQueryError(errs.CodeUnresolvedPrefix, p.text, nil,
			"line %d: prefix %q is not declared", tok.line, prefix)
	}
	return namespace + strings.ReplaceAll(local, `\`, ""), nil
}

// parseConstraint parses the body of FILTER: a bracketed expression or a
// bare function call.
func (p *queryParser) parseConstraint() (Filter, error) {
	start := p.peek()
	var expr Expression
	var err error
	switch {
	case p.isPunct("("):
		p.next()
		expr, err = p.parseExpression()
		if err != nil {
			return Filter{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Filter{}, err
		}
	case start.kind == tokWord && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "(":
		expr, err = p.parsePrimary()
		if err != nil {
			return Filter{}, err
		}
	default:
		return Filter{}, p.errorf(start, "expected '(' after FILTER, found %s", start)
	}

	end := p.tokens[p.pos-1]
	source := strings.TrimSpace(p.text[start.offset:end.end])
	if strings.HasPrefix(source, "(") && strings.HasSuffix(source, ")") {
		source = strings.TrimSpace(source[1 : len(source)-1])
	}
	return Filter{Expression: source, expr: expr}, nil
}

// parseSolutionModifiers parses ORDER BY, LIMIT and OFFSET in any order.
func (p *queryParser) parseSolutionModifiers() error {
	for {
		switch {
		case p.isKeyword("ORDER"):
			p.next()
			if !p.isKeyword("BY") {
				return p.errorf(p.peek(), "expected BY after ORDER")
			}
			p.next()
			keys, err := p.parseOrderBy()
			if err != nil {
				return err
			}
			p.query.OrderBy = append(p.query.OrderBy, keys...)
		case p.isKeyword("LIMIT"):
			p.next()
			n, err := p.parseCount("LIMIT")
			if err != nil {
				return err
			}
			p.query.Limit = n
		case p.isKeyword("OFFSET"):
			p.next()
			n, err := p.parseCount("OFFSET")
			if err != nil {
				return err
			}
			p.query.Offset = n
		default:
			return nil
		}
	}
}

// parseOrderBy parses ORDER BY keys: ?var, ASC(?var) or DESC(?var).
func (p *queryParser) parseOrderBy() ([]OrderBy, error) {
	var keys []OrderBy
	for {
		tok := p.peek()
		switch {
		case tok.kind == tokVar:
			p.next()
			keys = append(keys, OrderBy{Variable: tok.text})
		case p.isKeyword("ASC") || p.isKeyword("DESC"):
			descending := strings.EqualFold(p.next().text, "DESC")
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			v := p.next()
			if v.kind != tokVar {
				return nil, p.errorf(v, "expected variable in ORDER BY, found %s", v)
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			keys = append(keys, OrderBy{Variable: v.text, Descending: descending})
		default:
			if len(keys) == 0 {
				return nil, p.errorf(tok, "expected ORDER BY key, found %s", tok)
			}
			return keys, nil
		}
	}
}

func (p *queryParser) parseCount(keyword string) (int, error) {
	tok := p.next()
	if tok.kind != tokNumber {
		return 0, p.errorf(tok, "expected integer after %s, found %s", keyword, tok)
	}
	n, err := strconv.Atoi(tok.text)
	if err != nil || n < 0 {
		return 0, p.errorf(tok, "%s must be a non-negative integer, found %s", keyword, tok.text)
	}
	return n, nil
}

// validate checks that every projected and ordering variable is mentioned
// by some pattern.
func (q *Query) validate() error {
	if len(q.Where) == 0 && len(q.Optional) == 0 {
		return errs.NewQueryError(errs.CodeSyntax, q.Text, nil, "WHERE clause has no triple patterns")
	}

	mentioned := q.PatternVariables()
	for _, v := range q.Variables {
		if !slices.Contains(mentioned, v) {
			return errs.NewQueryError(errs.CodeUnboundProjection, q.Text, nil,
				"variable ?%s in SELECT is not bound in WHERE clause", v)
		}
	}
	for _, ob := range q.OrderBy {
		if !slices.Contains(mentioned, ob.Variable) {
			return errs.NewQueryError(errs.CodeUnboundProjection, q.Text, nil,
				"ORDER BY variable ?%s is not bound in WHERE clause", ob.Variable)
		}
	}
	return nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokBlank
	tokString
	tokLangTag
	tokNumber
	tokWord
	tokPunct
)

type token struct {
	kind   tokenKind
	text   string
	line   int
	offset int // byte offset of the first character
	end    int // byte offset just past the last character
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of query"
	case tokIRI:
		return "<" + t.text + ">"
	case tokVar:
		return "?" + t.text
	case tokBlank:
		return "_:" + t.text
	case tokString:
		return strconv.Quote(t.text)
	case tokLangTag:
		return "@" + t.text
	default:
		return strconv.Quote(t.text)
	}
}

// tokenize splits a query into tokens, respecting IRIs, strings and
// comments. '<' starts an IRI only when a matching '>' follows with no
// whitespace in between; otherwise it is the less-than operator.
func tokenize(s string) ([]token, error) {
	var tokens []token
	line := 1
	i := 0

	emit := func(kind tokenKind, text string, start, end int) {
		tokens = append(tokens, token{kind: kind, text: text, line: line, offset: start, end: end})
	}

	for i < len(s) {
		ch := s[i]
		switch {
		case ch == '\n':
			line++
			i++
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == '#':
			for i < len(s) && s[i] != '\n' {
				i++
			}

		case ch == '<':
			if end, ok := scanIRIRef(s, i); ok {
				emit(tokIRI, s[i+1:end], i, end+1)
				i = end + 1
				continue
			}
			if strings.HasPrefix(s[i:], "<=") {
				emit(tokPunct, "<=", i, i+2)
				i += 2
			} else {
				emit(tokPunct, "<", i, i+1)
				i++
			}

		case ch == '?' || ch == '$':
			start := i
			i++
			for i < len(s) && isVarChar(s[i]) {
				i++
			}
			if i == start+1 {
				return nil, fmt.Errorf("line %d: empty variable name", line)
			}
			emit(tokVar, s[start+1:i], start, i)

		case ch == '"' || ch == '\'':
			start := i
			value, end, lines, err := scanString(s, i)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			emit(tokString, value, start, end)
			line += lines
			i = end
			if i < len(s) && s[i] == '@' {
				tagStart := i + 1
				j := tagStart
				for j < len(s) && (isAlpha(s[j]) || isDigit(s[j]) || s[j] == '-') {
					j++
				}
				if j == tagStart {
					return nil, fmt.Errorf("line %d: empty language tag", line)
				}
				emit(tokLangTag, s[tagStart:j], i, j)
				i = j
			}

		case isDigit(ch) || (ch == '.' && i+1 < len(s) && isDigit(s[i+1])):
			start := i
			i = scanNumber(s, i)
			emit(tokNumber, s[start:i], start, i)

		case ch == '_' && i+1 < len(s) && s[i+1] == ':':
			start := i
			i += 2
			for i < len(s) && (isVarChar(s[i]) || s[i] == '-') {
				i++
			}
			if i == start+2 {
				return nil, fmt.Errorf("line %d: empty blank node label", line)
			}
			emit(tokBlank, s[start+2:i], start, i)

		case isAlpha(ch) || ch == ':':
			start := i
			for i < len(s) && (isNameChar(s[i]) || s[i] == ':' || (s[i] == '\\' && i+1 < len(s))) {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			for i > start+1 && s[i-1] == '.' {
				i--
			}
			word := s[start:i]
			if strings.ContainsRune(word, ':') {
				emit(tokPName, word, start, i)
			} else {
				emit(tokWord, word, start, i)
			}

		default:
			start := i
			op := ""
			for _, candidate := range []string{"^^", "!=", ">=", "&&", "||"} {
				if strings.HasPrefix(s[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" && strings.ContainsRune("{}().;,*=!>+-/", rune(ch)) {
				op = string(ch)
			}
			if op == "" {
				r, _ := utf8.DecodeRuneInString(s[i:])
				return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
			}
			i += len(op)
			emit(tokPunct, op, start, i)
		}
	}

	tokens = append(tokens, token{kind: tokEOF, line: line, offset: len(s), end: len(s)})
	return tokens, nil
}

// scanIRIRef returns the index of the '>' closing an IRI that starts at
// s[start] == '<'.
func scanIRIRef(s string, start int) (int, bool) {
	for j := start + 1; j < len(s); j++ {
		switch s[j] {
		case '>':
			return j, true
		case ' ', '\t', '\r', '\n', '<', '"', '{', '}', '|', '^', '`':
			return 0, false
		}
	}
	return 0, false
}

// scanString reads a quoted string starting at s[start], including the
// triple-quoted long forms, and returns the unescaped value, the index
// after the closing quote and the number of newlines consumed.
func scanString(s string, start int) (string, int, int, error) {
	quote := s[start]
	long := strings.HasPrefix(s[start:], strings.Repeat(string(quote), 3))
	i := start + 1
	if long {
		i = start + 3
	}

	var builder strings.Builder
	lines := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == '\\':
			if i+1 >= len(s) {
				return "", 0, 0, fmt.Errorf("unterminated escape")
			}
			r, width, err := unescape(s[i:])
			if err != nil {
				return "", 0, 0, err
			}
			builder.WriteRune(r)
			i += width
		case ch == quote && !long:
			return builder.String(), i + 1, lines, nil
		case ch == quote && strings.HasPrefix(s[i:], strings.Repeat(string(quote), 3)):
			return builder.String(), i + 3, lines, nil
		case ch == '\n' && !long:
			return "", 0, 0, fmt.Errorf("newline in string literal")
		default:
			if ch == '\n' {
				lines++
			}
			builder.WriteByte(ch)
			i++
		}
	}
	return "", 0, 0, fmt.Errorf("unterminated string literal")
}

// unescape decodes the escape sequence at the start of s.
func unescape(s string) (rune, int, error) {
	switch s[1] {
	case 't':
		return '\t', 2, nil
	case 'n':
		return '\n', 2, nil
	case 'r':
		return '\r', 2, nil
	case 'b':
		return '\b', 2, nil
	case 'f':
		return '\f', 2, nil
	case '"', '\'', '\\':
		return rune(s[1]), 2, nil
	case 'u', 'U':
		width := 4
		if s[1] == 'U' {
			width = 8
		}
		if len(s) < 2+width {
			return 0, 0, fmt.Errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(s[2:2+width], 16, 32)
		if err != nil || !utf8.ValidRune(rune(code)) {
			return 0, 0, fmt.Errorf("invalid unicode escape %q", s[:2+width])
		}
		return rune(code), 2 + width, nil
	default:
		return 0, 0, fmt.Errorf("invalid escape \\%c", s[1])
	}
}

func scanNumber(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			i = j
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
	}
	return i
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isVarChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '_' || ch >= 0x80
}

func isNameChar(ch byte) bool {
	return isVarChar(ch) || ch == '-' || ch == '.'
}
