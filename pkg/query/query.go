// Package query parses and evaluates SPARQL-style SELECT queries against
// any store.Graph.
package query

import (
	"slices"
	"strconv"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Query is a parsed SELECT query.
type Query struct {
	Text      string            // Source text, including any prefix preamble
	Variables []string          // Projected variable names without '?'; empty when Star
	Star      bool              // SELECT *
	Distinct  bool              // DISTINCT (or REDUCED) modifier
	Where     []TriplePattern   // Required basic graph pattern
	Optional  []OptionalGroup   // OPTIONAL groups, left-joined in order
	Filters   []Filter          // FILTER constraints scoped to the whole WHERE group
	OrderBy   []OrderBy         // ORDER BY keys
	Limit     int               // LIMIT (-1 = no limit)
	Offset    int               // OFFSET (0 = no offset)
	Prefixes  map[string]string // Prefix declarations in effect
}

// OptionalGroup is the body of one OPTIONAL { ... } block. Its filters
// constrain the join; a group whose filters reject every extension leaves
// the outer row unchanged.
type OptionalGroup struct {
	Patterns []TriplePattern
	Filters  []Filter
}

// Term is a pattern position: a variable or a fixed node.
type Term struct {
	Var  string
	Node store.Node
}

// Variable creates a variable term.
func Variable(name string) Term { return Term{Var: name} }

// Fixed creates a constant term.
func Fixed(n store.Node) Term { return Term{Node: n} }

// IsVariable reports whether the term is a variable.
func (t Term) IsVariable() bool { return t.Var != "" }

func (t Term) String() string {
	if t.IsVariable() {
		if strings.HasPrefix(t.Var, blankVarPrefix) {
			return "_:" + strings.TrimPrefix(t.Var, blankVarPrefix)
		}
		return "?" + t.Var
	}
	return t.Node.String()
}

// blankVarPrefix marks variables that stand for blank nodes written in the
// query. They join like variables but are never projected by SELECT *.
const blankVarPrefix = "_b_"

// TriplePattern is a triple pattern in a WHERE clause.
type TriplePattern struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func (p TriplePattern) String() string {
	return p.Subject.String() + " " + p.Predicate.String() + " " + p.Object.String() + " ."
}

// vars appends the pattern's variable names to dst.
func (p TriplePattern) vars(dst []string) []string {
	for _, term := range []Term{p.Subject, p.Predicate, p.Object} {
		if term.IsVariable() && !slices.Contains(dst, term.Var) {
			dst = append(dst, term.Var)
		}
	}
	return dst
}

// Filter is a parsed FILTER constraint.
type Filter struct {
	Expression string     // Source text of the constraint
	expr       Expression // Compiled form
}

// OrderBy is one ORDER BY key.
type OrderBy struct {
	Variable   string
	Descending bool
}

// PatternVariables returns every variable mentioned by the required and
// optional patterns, in order of first appearance.
func (q *Query) PatternVariables() []string {
	var vars []string
	for _, p := range q.Where {
		vars = p.vars(vars)
	}
	for _, group := range q.Optional {
		for _, p := range group.Patterns {
			vars = p.vars(vars)
		}
	}
	return vars
}

// Projection returns the names of the result columns.
func (q *Query) Projection() []string {
	if !q.Star {
		return q.Variables
	}
	var projected []string
	for _, v := range q.PatternVariables() {
		if !strings.HasPrefix(v, blankVarPrefix) {
			projected = append(projected, v)
		}
	}
	return projected
}

// String renders the query in a normalized form, for debugging.
func (q *Query) String() string {
	var sb strings.Builder

	prefixes := make([]string, 0, len(q.Prefixes))
	for p := range q.Prefixes {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)
	for _, p := range prefixes {
		sb.WriteString("PREFIX " + p + ": <" + q.Prefixes[p] + ">\n")
	}

	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	if q.Star {
		sb.WriteString("*")
	} else {
		for i, v := range q.Variables {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString("?" + v)
		}
	}

	sb.WriteString(" WHERE {\n")
	for _, p := range q.Where {
		sb.WriteString("  " + p.String() + "\n")
	}
	for _, group := range q.Optional {
		sb.WriteString("  OPTIONAL {\n")
		for _, p := range group.Patterns {
			sb.WriteString("    " + p.String() + "\n")
		}
		for _, f := range group.Filters {
			sb.WriteString("    FILTER(" + f.Expression + ")\n")
		}
		sb.WriteString("  }\n")
	}
	for _, f := range q.Filters {
		sb.WriteString("  FILTER(" + f.Expression + ")\n")
	}
	sb.WriteString("}")

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY")
		for _, ob := range q.OrderBy {
			if ob.Descending {
				sb.WriteString(" DESC(?" + ob.Variable + ")")
			} else {
				sb.WriteString(" ?" + ob.Variable)
			}
		}
	}
	if q.Limit >= 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
	return sb.String()
}
