package query

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Expression is a compiled FILTER expression.
type Expression interface {
	Evaluate(row Row) (store.Node, error)
}

// errTypeError is an evaluation error. A filter whose expression fails
// evaluation rejects the row.
var errTypeError = errors.New("type error")

var (
	trueNode  = store.TypedLiteral("true", store.XSDBoolean)
	falseNode = store.TypedLiteral("false", store.XSDBoolean)
)

func booleanNode(b bool) store.Node {
	if b {
		return trueNode
	}
	return falseNode
}

// accepts reports whether the filter keeps the row.
func (f Filter) accepts(row Row) bool {
	if f.expr == nil {
		return true
	}
	value, err := f.expr.Evaluate(row)
	if err != nil {
		return false
	}
	b, err := effectiveBoolean(value)
	return err == nil && b
}

// effectiveBoolean computes the effective boolean value of a node.
func effectiveBoolean(n store.Node) (bool, error) {
	if !n.IsLiteral() {
		return false, errTypeError
	}
	switch n.Datatype {
	case store.XSDBoolean:
		return n.Value == "true" || n.Value == "1", nil
	case store.XSDInteger, store.XSDDecimal, store.XSDDouble:
		v, ok := n.Number()
		if !ok {
			return false, nil
		}
		return v != 0, nil
	case "":
		return n.Value != "", nil
	default:
		return false, errTypeError
	}
}

type variableExpr struct{ name string }

func (e variableExpr) Evaluate(row Row) (store.Node, error) {
	if n, ok := row.Get(e.name); ok {
		return n, nil
	}
	return store.Node{}, errTypeError
}

type constantExpr struct{ node store.Node }

func (e constantExpr) Evaluate(Row) (store.Node, error) { return e.node, nil }

type notExpr struct{ operand Expression }

func (e notExpr) Evaluate(row Row) (store.Node, error) {
	value, err := e.operand.Evaluate(row)
	if err != nil {
		return store.Node{}, err
	}
	b, err := effectiveBoolean(value)
	if err != nil {
		return store.Node{}, err
	}
	return booleanNode(!b), nil
}

type logicalExpr struct {
	and         bool
	left, right Expression
}

// Evaluate follows SPARQL's three-valued logic: an error on one side is
// masked when the other side decides the result.
func (e logicalExpr) Evaluate(row Row) (store.Node, error) {
	left, leftErr := evaluateBoolean(e.left, row)
	right, rightErr := evaluateBoolean(e.right, row)

	if e.and {
		switch {
		case leftErr == nil && !left, rightErr == nil && !right:
			return falseNode, nil
		case leftErr != nil:
			return store.Node{}, leftErr
		case rightErr != nil:
			return store.Node{}, rightErr
		}
		return trueNode, nil
	}

	switch {
	case leftErr == nil && left, rightErr == nil && right:
		return trueNode, nil
	case leftErr != nil:
		return store.Node{}, leftErr
	case rightErr != nil:
		return store.Node{}, rightErr
	}
	return falseNode, nil
}

func evaluateBoolean(e Expression, row Row) (bool, error) {
	value, err := e.Evaluate(row)
	if err != nil {
		return false, err
	}
	return effectiveBoolean(value)
}

type compareExpr struct {
	op          string
	left, right Expression
}

func (e compareExpr) Evaluate(row Row) (store.Node, error) {
	left, err := e.left.Evaluate(row)
	if err != nil {
		return store.Node{}, err
	}
	right, err := e.right.Evaluate(row)
	if err != nil {
		return store.Node{}, err
	}

	if lv, ok := numericValue(left); ok {
		if rv, ok := numericValue(right); ok {
			return booleanNode(compareOrdered(e.op, compareFloats(lv, rv))), nil
		}
	}

	switch e.op {
	case "=":
		return booleanNode(left == right), nil
	case "!=":
		return booleanNode(left != right), nil
	}

	if !left.IsLiteral() || !right.IsLiteral() || left.Lang != right.Lang || left.Datatype != right.Datatype {
		return store.Node{}, errTypeError
	}
	return booleanNode(compareOrdered(e.op, strings.Compare(left.Value, right.Value))), nil
}

// numericValue returns the value of a numeric literal. Plain literals whose
// lexical form is a number count as numeric.
func numericValue(n store.Node) (float64, bool) {
	switch n.Datatype {
	case "", store.XSDInteger, store.XSDDecimal, store.XSDDouble:
		return n.Number()
	}
	return 0, false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOrdered(op string, c int) bool {
	switch op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	case ">=":
		return c >= 0
	}
	return false
}

// functionArity lists the built-in functions with their minimum and
// maximum argument counts.
var functionArity = map[string][2]int{
	"BOUND":       {1, 1},
	"REGEX":       {2, 3},
	"CONTAINS":    {2, 2},
	"STRSTARTS":   {2, 2},
	"STRENDS":     {2, 2},
	"LANG":        {1, 1},
	"LANGMATCHES": {2, 2},
	"DATATYPE":    {1, 1},
	"STR":         {1, 1},
	"STRLEN":      {1, 1},
	"LCASE":       {1, 1},
	"UCASE":       {1, 1},
	"ISIRI":       {1, 1},
	"ISURI":       {1, 1},
	"ISLITERAL":   {1, 1},
	"ISBLANK":     {1, 1},
	"SAMETERM":    {2, 2},
}

type callExpr struct {
	name  string
	args  []Expression
	regex *regexp.Regexp // precompiled when REGEX has constant pattern and flags
}

func (e callExpr) Evaluate(row Row) (store.Node, error) {
	if e.name == "BOUND" {
		_, ok := row.Get(e.args[0].(variableExpr).name)
		return booleanNode(ok), nil
	}

	args := make([]store.Node, len(e.args))
	for i, arg := range e.args {
		value, err := arg.Evaluate(row)
		if err != nil {
			return store.Node{}, err
		}
		args[i] = value
	}

	switch e.name {
	case "ISIRI", "ISURI":
		return booleanNode(args[0].IsIRI()), nil
	case "ISLITERAL":
		return booleanNode(args[0].IsLiteral()), nil
	case "ISBLANK":
		return booleanNode(args[0].IsBlank()), nil
	case "SAMETERM":
		return booleanNode(args[0] == args[1]), nil
	case "STR":
		if args[0].IsBlank() {
			return store.Node{}, errTypeError
		}
		return store.Literal(args[0].Value), nil
	case "LANG":
		if !args[0].IsLiteral() {
			return store.Node{}, errTypeError
		}
		return store.Literal(args[0].Lang), nil
	case "LANGMATCHES":
		return booleanNode(langMatches(args[0].Value, args[1].Value)), nil
	case "DATATYPE":
		if !args[0].IsLiteral() {
			return store.Node{}, errTypeError
		}
		return store.IRI(args[0].EffectiveDatatype()), nil
	}

	for _, arg := range args {
		if !arg.IsLiteral() {
			return store.Node{}, errTypeError
		}
	}

	switch e.name {
	case "STRLEN":
		return store.TypedLiteral(strconv.Itoa(len([]rune(args[0].Value))), store.XSDInteger), nil
	case "LCASE":
		return withValue(args[0], strings.ToLower(args[0].Value)), nil
	case "UCASE":
		return withValue(args[0], strings.ToUpper(args[0].Value)), nil
	case "CONTAINS":
		return booleanNode(strings.Contains(args[0].Value, args[1].Value)), nil
	case "STRSTARTS":
		return booleanNode(strings.HasPrefix(args[0].Value, args[1].Value)), nil
	case "STRENDS":
		return booleanNode(strings.HasSuffix(args[0].Value, args[1].Value)), nil
	case "REGEX":
		re := e.regex
		if re == nil {
			flags := ""
			if len(args) == 3 {
				flags = args[2].Value
			}
			compiled, err := compileRegex(args[1].Value, flags)
			if err != nil {
				return store.Node{}, errTypeError
			}
			re = compiled
		}
		return booleanNode(re.MatchString(args[0].Value)), nil
	}
	return store.Node{}, errTypeError
}

func withValue(n store.Node, value string) store.Node {
	if n.Lang != "" {
		return store.LangLiteral(value, n.Lang)
	}
	return store.TypedLiteral(value, n.Datatype)
}

// langMatches implements basic language-range matching: "*" matches any
// non-empty tag and a range matches the tag or any of its subtags.
func langMatches(tag, languageRange string) bool {
	tag = strings.ToLower(tag)
	languageRange = strings.ToLower(languageRange)
	if languageRange == "*" {
		return tag != ""
	}
	return tag == languageRange || strings.HasPrefix(tag, languageRange+"-")
}

// compileRegex compiles a pattern with SPARQL flags (i, s, m, x).
func compileRegex(pattern, flags string) (*regexp.Regexp, error) {
	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 's', 'm':
			goFlags.WriteRune(f)
		case 'x':
			pattern = stripRegexWhitespace(pattern)
		default:
			return nil, errTypeError
		}
	}
	if goFlags.Len() > 0 {
		pattern = "(?" + goFlags.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func stripRegexWhitespace(pattern string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, pattern)
}

// parseExpression parses a FILTER expression:
//
//	expr    := and ( '||' and )*
//	and     := rel ( '&&' rel )*
//	rel     := unary ( ( '=' | '!=' | '<' | '>' | '<=' | '>=' ) unary )?
//	unary   := '!' unary | primary
//	primary := '(' expr ')' | var | iri | literal | call
func (p *queryParser) parseExpression() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicalExpr{left: left, right: right}
	}
	return left, nil
}

func (p *queryParser) parseAnd() (Expression, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		p.next()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = logicalExpr{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *queryParser) parseRelational() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"=", "!=", "<", ">", "<=", ">="} {
		if p.isPunct(op) {
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return compareExpr{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *queryParser) parseUnary() (Expression, error) {
	if p.isPunct("!") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *queryParser) parsePrimary() (Expression, error) {
	tok := p.peek()
	switch {
	case p.isPunct("("):
		p.next()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case tok.kind == tokVar:
		p.next()
		return variableExpr{name: tok.text}, nil

	case tok.kind == tokIRI:
		p.next()
		return constantExpr{node: store.IRI(store.ResolveIRI(p.base, tok.text))}, nil

	case tok.kind == tokPName:
		p.next()
		iri, err := p.expandPrefixed(tok)
		if err != nil {
			return nil, err
		}
		return constantExpr{node: store.IRI(iri)}, nil

	case tok.kind == tokWord && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "(":
		return p.parseCall()
	}

	n, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return constantExpr{node: n}, nil
}

func (p *queryParser) parseCall() (Expression, error) {
	nameTok := p.next()
	name := strings.ToUpper(nameTok.text)
	arity, ok := functionArity[name]
	if !ok {
		return nil, p.errorf(nameTok, "unknown function %s", nameTok.text)
	}
	p.next() // '('

	var args []Expression
	if !p.isPunct(")") {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if len(args) < arity[0] || len(args) > arity[1] {
		return nil, p.errorf(nameTok, "%s expects %s, got %d", name, arityText(arity), len(args))
	}

	call := callExpr{name: name, args: args}
	switch name {
	case "BOUND":
		if _, ok := args[0].(variableExpr); !ok {
			return nil, p.errorf(nameTok, "BOUND expects a variable")
		}
	case "REGEX":
		pattern, patternConst := args[1].(constantExpr)
		flags := ""
		flagsConst := true
		if len(args) == 3 {
			var f constantExpr
			f, flagsConst = args[2].(constantExpr)
			flags = f.node.Value
		}
		if patternConst && flagsConst {
			re, err := compileRegex(pattern.node.Value, flags)
			if err != nil {
				return nil, p.errorf(nameTok, "invalid regular expression %q", pattern.node.Value)
			}
			call.regex = re
		}
	}
	return call, nil
}

func arityText(arity [2]int) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 argument"
		}
		return strconv.Itoa(n) + " arguments"
	}
	if arity[0] == arity[1] {
		return plural(arity[0])
	}
	return strconv.Itoa(arity[0]) + " to " + plural(arity[1])
}
