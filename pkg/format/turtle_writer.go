package format

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// TurtleWriter writes a graph as Turtle, grouping statements by subject and
// compacting IRIs with the supplied prefixes.
type TurtleWriter struct{}

func (TurtleWriter) Write(w io.Writer, g store.Graph, prefixes map[string]string) error {
	index := newNamespaceIndex(prefixes)
	bw := bufio.NewWriter(w)

	for _, mapping := range index.mappings {
		fmt.Fprintf(bw, "@prefix %s: <%s> .\n", mapping.Prefix, escapeIRI(mapping.Namespace))
	}
	if len(index.mappings) > 0 {
		bw.WriteString("\n")
	}

	for i, group := range groupBySubject(g) {
		if i > 0 {
			bw.WriteString("\n")
		}
		writeTurtleGroup(bw, index, group)
	}
	return bw.Flush()
}

func writeTurtleGroup(bw *bufio.Writer, index *namespaceIndex, group subjectGroup) {
	bw.WriteString(turtleTerm(index, group.subject))

	for predicateIndex, predicate := range group.predicates {
		if predicateIndex == 0 {
			bw.WriteString(" ")
		} else {
			bw.WriteString(" ;\n    ")
		}
		if predicate == store.RDFType {
			bw.WriteString("a")
		} else {
			bw.WriteString(turtleTerm(index, predicate))
		}

		for objectIndex, object := range group.objects[predicate] {
			if objectIndex > 0 {
				bw.WriteString(" ,\n        ")
			} else {
				bw.WriteString(" ")
			}
			bw.WriteString(turtleTerm(index, object))
		}
	}
	bw.WriteString(" .\n")
}

func turtleTerm(index *namespaceIndex, n store.Node) string {
	switch n.Kind {
	case store.KindIRI:
		return turtleIRI(index, n.Value)
	case store.KindBlank:
		return "_:" + n.Value
	case store.KindLiteral:
		literal := formatLiteral(n.Value)
		if n.Lang != "" {
			return literal + "@" + n.Lang
		}
		if n.Datatype != "" {
			return literal + "^^" + turtleIRI(index, n.Datatype)
		}
		return literal
	default:
		return ""
	}
}

func turtleIRI(index *namespaceIndex, iri string) string {
	if prefix, local, ok := index.split(iri, isValidLocalName); ok {
		return prefix + ":" + local
	}
	return "<" + escapeIRI(iri) + ">"
}

// isValidLocalName reports whether a local name can be written unescaped
// after a prefix.
func isValidLocalName(localName string) bool {
	if localName == "" {
		return false
	}
	if first := localName[0]; first == '-' || first == '.' {
		return false
	}
	if strings.HasSuffix(localName, ".") {
		return false
	}
	for i := 0; i < len(localName); i++ {
		ch := localName[i]
		if !(ch >= 0x80 || isAlnum(ch) || ch == '_' || ch == '-' || ch == '.') {
			return false
		}
	}
	return true
}

// formatLiteral wraps a lexical form in Turtle double quotes.
func formatLiteral(value string) string {
	escaped := store.EscapeLiteral(value)

	if strings.Contains(value, "\n") {
		return `"""` + escaped + `"""`
	}

	return `"` + escaped + `"`
}

// escapeIRI escapes characters not allowed in IRIs within angle brackets.
func escapeIRI(iri string) string {
	var builder strings.Builder
	builder.Grow(len(iri))

	for _, char := range iri {
		switch char {
		case '<':
			builder.WriteString(`\u003C`)
		case '>':
			builder.WriteString(`\u003E`)
		case '"':
			builder.WriteString(`\u0022`)
		case ' ':
			builder.WriteString(`\u0020`)
		case '{':
			builder.WriteString(`\u007B`)
		case '}':
			builder.WriteString(`\u007D`)
		default:
			builder.WriteRune(char)
		}
	}

	return builder.String()
}
