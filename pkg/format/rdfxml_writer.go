package format

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// RDFXMLWriter writes one rdf:Description per subject. Predicates outside
// the supplied prefixes get a namespace declared on their own element.
type RDFXMLWriter struct{}

func (RDFXMLWriter) Write(w io.Writer, g store.Graph, prefixes map[string]string) error {
	declared := make(map[string]string, len(prefixes)+1)
	for prefix, namespace := range prefixes {
		if prefix != "rdf" && isXMLName(prefix) {
			declared[prefix] = namespace
		}
	}
	declared["rdf"] = store.NamespaceRDF
	index := newNamespaceIndex(declared)

	bw := bufio.NewWriter(w)
	bw.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	bw.WriteString("<rdf:RDF")
	for _, mapping := range index.mappings {
		fmt.Fprintf(bw, "\n    xmlns:%s=\"%s\"", mapping.Prefix, escapeXMLAttribute(mapping.Namespace))
	}
	bw.WriteString(">\n")

	for _, group := range groupBySubject(g) {
		if err := writeDescription(bw, index, group); err != nil {
			return err
		}
	}

	bw.WriteString("</rdf:RDF>\n")
	return bw.Flush()
}

func writeDescription(bw *bufio.Writer, index *namespaceIndex, group subjectGroup) error {
	bw.WriteString("\n")
	fmt.Fprintf(bw, "  <rdf:Description %s>\n", nodeAttr(group.subject, "about"))

	for _, predicate := range group.predicates {
		elementName, declaration, ok := predicateElementName(index, predicate.Value)
		if !ok {
			return fmt.Errorf("rdfxml: predicate %s has no XML element name", predicate)
		}
		for _, object := range group.objects[predicate] {
			writeProperty(bw, elementName, declaration, object)
		}
	}

	bw.WriteString("  </rdf:Description>\n")
	return nil
}

// writeProperty writes a single predicate-object pair as an XML element.
func writeProperty(bw *bufio.Writer, elementName, declaration string, object store.Node) {
	switch object.Kind {
	case store.KindIRI, store.KindBlank:
		fmt.Fprintf(bw, "    <%s%s %s/>\n", elementName, declaration, nodeAttr(object, "resource"))
	default:
		attrs := ""
		if object.Lang != "" {
			attrs = fmt.Sprintf(" xml:lang=\"%s\"", escapeXMLAttribute(object.Lang))
		} else if object.Datatype != "" {
			attrs = fmt.Sprintf(" rdf:datatype=\"%s\"", escapeXMLAttribute(object.Datatype))
		}
		fmt.Fprintf(bw, "    <%s%s%s>%s</%s>\n", elementName, declaration, attrs, escapeXMLText(object.Value), elementName)
	}
}

// nodeAttr renders an IRI as rdf:<attr> and a blank node as rdf:nodeID.
func nodeAttr(n store.Node, attr string) string {
	if n.IsBlank() {
		return fmt.Sprintf("rdf:nodeID=\"%s\"", escapeXMLAttribute(n.Value))
	}
	return fmt.Sprintf("rdf:%s=\"%s\"", attr, escapeXMLAttribute(n.Value))
}

// predicateElementName splits a predicate into a prefixed element name. When
// no declared namespace fits, the IRI is split after its last '#' or '/'
// and the namespace is declared inline on the element.
func predicateElementName(index *namespaceIndex, predicate string) (string, string, bool) {
	if prefix, local, ok := index.split(predicate, isXMLName); ok {
		return prefix + ":" + local, "", true
	}
	cut := strings.LastIndexAny(predicate, "#/")
	namespace, local := predicate[:cut+1], predicate[cut+1:]
	if !isXMLName(local) {
		return "", "", false
	}
	return "ns0:" + local, fmt.Sprintf(" xmlns:ns0=\"%s\"", escapeXMLAttribute(namespace)), true
}

// isXMLName reports whether s can be used as an XML local name.
func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	if first := s[0]; isDigit(first) || first == '-' || first == '.' {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !(ch >= 0x80 || isAlnum(ch) || ch == '_' || ch == '-' || ch == '.') {
			return false
		}
	}
	return true
}

// escapeXMLText escapes characters that are special in XML text content.
func escapeXMLText(text string) string {
	var builder strings.Builder
	builder.Grow(len(text) + len(text)/8)

	for _, char := range text {
		switch char {
		case '&':
			builder.WriteString("&amp;")
		case '<':
			builder.WriteString("&lt;")
		case '>':
			builder.WriteString("&gt;")
		case '\r':
			builder.WriteString("&#13;")
		default:
			builder.WriteRune(char)
		}
	}

	return builder.String()
}

// escapeXMLAttribute escapes characters that are special in XML attribute values.
func escapeXMLAttribute(text string) string {
	var builder strings.Builder
	builder.Grow(len(text) + len(text)/8)

	for _, char := range text {
		switch char {
		case '&':
			builder.WriteString("&amp;")
		case '<':
			builder.WriteString("&lt;")
		case '>':
			builder.WriteString("&gt;")
		case '"':
			builder.WriteString("&quot;")
		default:
			builder.WriteRune(char)
		}
	}

	return builder.String()
}
