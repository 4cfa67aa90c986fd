package store

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies the variant of a Node.
type Kind uint8

const (
	// KindNone is the zero Node: a wildcard in patterns, unbound in rows.
	KindNone Kind = iota
	KindIRI
	KindBlank
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	default:
		return "none"
	}
}

// Node is an immutable graph value. Nodes compare by value and can be used
// as map keys.
//
// IRIs are NFC-normalized on construction so that canonically equivalent
// IRIs produce equal nodes. Literal lexical forms are kept as given and
// compare code point by code point. A literal whose
// datatype is xsd:string is stored with an empty Datatype, the same as a
// simple literal.
type Node struct {
	Kind     Kind
	Value    string
	Datatype string
	Lang     string
}

// IRI creates a resource node.
func IRI(iri string) Node {
	return Node{Kind: KindIRI, Value: norm.NFC.String(iri)}
}

// Blank creates a blank node with a graph-local label.
func Blank(label string) Node {
	return Node{Kind: KindBlank, Value: label}
}

// Literal creates a simple literal.
func Literal(lexical string) Node {
	return Node{Kind: KindLiteral, Value: lexical}
}

// TypedLiteral creates a literal with a datatype IRI.
func TypedLiteral(lexical, datatype string) Node {
	if datatype == XSDString || datatype == RDFLangString {
		datatype = ""
	}
	return Node{Kind: KindLiteral, Value: lexical, Datatype: norm.NFC.String(datatype)}
}

// LangLiteral creates a language-tagged literal. Tags are compared
// case-insensitively, so they are stored in lower case.
func LangLiteral(lexical, lang string) Node {
	return Node{Kind: KindLiteral, Value: lexical, Lang: strings.ToLower(lang)}
}

// IsZero reports whether n is the unbound/wildcard node.
func (n Node) IsZero() bool { return n.Kind == KindNone }

func (n Node) IsIRI() bool     { return n.Kind == KindIRI }
func (n Node) IsBlank() bool   { return n.Kind == KindBlank }
func (n Node) IsLiteral() bool { return n.Kind == KindLiteral }

// IsResource reports whether n may appear in subject position.
func (n Node) IsResource() bool { return n.Kind == KindIRI || n.Kind == KindBlank }

// EffectiveDatatype returns the datatype IRI a literal carries, including the
// implicit xsd:string and rdf:langString.
func (n Node) EffectiveDatatype() string {
	switch {
	case n.Kind != KindLiteral:
		return ""
	case n.Lang != "":
		return RDFLangString
	case n.Datatype == "":
		return XSDString
	default:
		return n.Datatype
	}
}

// Number returns the numeric value of a literal whose lexical form parses as
// a number. Plain literals are accepted so that "17" compares numerically.
func (n Node) Number() (float64, bool) {
	if n.Kind != KindLiteral || n.Lang != "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String renders the node in N-Triples term syntax.
func (n Node) String() string {
	switch n.Kind {
	case KindIRI:
		return "<" + n.Value + ">"
	case KindBlank:
		return "_:" + n.Value
	case KindLiteral:
		quoted := `"` + EscapeLiteral(n.Value) + `"`
		if n.Lang != "" {
			return quoted + "@" + n.Lang
		}
		if n.Datatype != "" {
			return quoted + "^^<" + n.Datatype + ">"
		}
		return quoted
	default:
		return ""
	}
}

// MarshalText lets nodes key JSON maps such as IndexStats counts.
func (n Node) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// Compare orders nodes by kind, then value, datatype and language.
func Compare(a, b Node) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	if c := strings.Compare(a.Datatype, b.Datatype); c != 0 {
		return c
	}
	return strings.Compare(a.Lang, b.Lang)
}

// EscapeLiteral escapes a lexical form for a double-quoted N-Triples or
// Turtle string.
func EscapeLiteral(value string) string {
	var builder strings.Builder
	builder.Grow(len(value) + len(value)/8)

	for _, char := range value {
		switch char {
		case '\\':
			builder.WriteString(`\\`)
		case '"':
			builder.WriteString(`\"`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\t':
			builder.WriteString(`\t`)
		default:
			builder.WriteRune(char)
		}
	}

	return builder.String()
}
