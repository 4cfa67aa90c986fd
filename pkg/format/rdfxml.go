package format

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// RDFXMLParser reads RDF/XML: typed node elements, property attributes,
// rdf:resource and rdf:nodeID references, nested node elements, the
// Resource and Literal parse types, rdf:li numbering, xml:base and
// inherited xml:lang.
type RDFXMLParser struct{}

// NewRDFXMLParser is the ParserFactory for RDF/XML.
func NewRDFXMLParser() store.Parser { return RDFXMLParser{} }

func (RDFXMLParser) Parse(ctx context.Context, r io.Reader, base string, emit func(store.Triple) error) error {
	p := &rdfxmlParser{ctx: ctx, dec: xml.NewDecoder(r), emit: emit}
	root := xmlScope{base: base}

	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rdfxml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if isRDFName(start.Name, "RDF") {
			if err := p.parseNodeElements(root.enter(start)); err != nil {
				return err
			}
			continue
		}
		if _, err := p.parseNodeElement(start, root); err != nil {
			return err
		}
	}
}

type xmlScope struct {
	base string
	lang string
}

func (s xmlScope) enter(el xml.StartElement) xmlScope {
	next := s
	for _, attr := range el.Attr {
		if attr.Name.Space != xmlNamespace {
			continue
		}
		switch attr.Name.Local {
		case "base":
			next.base = store.ResolveIRI(s.base, attr.Value)
		case "lang":
			next.lang = attr.Value
		}
	}
	return next
}

type rdfxmlParser struct {
	ctx   context.Context
	dec   *xml.Decoder
	emit  func(store.Triple) error
	genID int
}

func (p *rdfxmlParser) freshBlank() store.Node {
	p.genID++
	return store.Blank(fmt.Sprintf("g%d", p.genID))
}

func (p *rdfxmlParser) token() (xml.Token, error) {
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := p.dec.Token()
	if err == io.EOF {
		return nil, fmt.Errorf("rdfxml: unexpected end of document")
	}
	if err != nil {
		return nil, fmt.Errorf("rdfxml: %w", err)
	}
	return tok, nil
}

func (p *rdfxmlParser) parseNodeElements(scope xmlScope) error {
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if _, err := p.parseNodeElement(t, scope); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *rdfxmlParser) parseNodeElement(el xml.StartElement, parent xmlScope) (store.Node, error) {
	scope := parent.enter(el)
	subject := p.nodeSubject(el, scope)

	if !isRDFName(el.Name, "Description") {
		class := store.IRI(el.Name.Space + el.Name.Local)
		if err := p.emit(store.NewTriple(subject, store.RDFType, class)); err != nil {
			return store.Node{}, err
		}
	}
	if err := p.emitPropertyAttrs(subject, el.Attr, scope); err != nil {
		return store.Node{}, err
	}
	return subject, p.parsePropertyElements(subject, scope)
}

func (p *rdfxmlParser) nodeSubject(el xml.StartElement, scope xmlScope) store.Node {
	if about, ok := rdfAttr(el.Attr, "about"); ok {
		return store.IRI(store.ResolveIRI(scope.base, about))
	}
	if id, ok := rdfAttr(el.Attr, "ID"); ok {
		return store.IRI(store.ResolveIRI(scope.base, "#"+id))
	}
	if nodeID, ok := rdfAttr(el.Attr, "nodeID"); ok {
		return store.Blank("d" + nodeID)
	}
	return p.freshBlank()
}

// emitPropertyAttrs turns non-syntax attributes into statements about subject.
func (p *rdfxmlParser) emitPropertyAttrs(subject store.Node, attrs []xml.Attr, scope xmlScope) error {
	for _, attr := range attrs {
		if isSyntaxAttr(attr.Name) {
			continue
		}
		var t store.Triple
		if isRDFName(attr.Name, "type") {
			t = store.NewTriple(subject, store.RDFType, store.IRI(store.ResolveIRI(scope.base, attr.Value)))
		} else {
			t = store.NewTriple(subject, store.IRI(attr.Name.Space+attr.Name.Local), p.plainLiteral(attr.Value, scope))
		}
		if err := p.emit(t); err != nil {
			return err
		}
	}
	return nil
}

func (p *rdfxmlParser) plainLiteral(value string, scope xmlScope) store.Node {
	if scope.lang != "" {
		return store.LangLiteral(value, scope.lang)
	}
	return store.Literal(value)
}

func (p *rdfxmlParser) parsePropertyElements(subject store.Node, scope xmlScope) error {
	li := 0
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.parsePropertyElement(subject, t, scope, &li); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *rdfxmlParser) parsePropertyElement(subject store.Node, el xml.StartElement, parent xmlScope, li *int) error {
	scope := parent.enter(el)

	predicateIRI := el.Name.Space + el.Name.Local
	if isRDFName(el.Name, "li") {
		*li++
		predicateIRI = store.NamespaceRDF + "_" + strconv.Itoa(*li)
	}
	predicate := store.IRI(predicateIRI)

	parseType, _ := rdfAttr(el.Attr, "parseType")
	switch parseType {
	case "Resource":
		object := p.freshBlank()
		if err := p.emit(store.NewTriple(subject, predicate, object)); err != nil {
			return err
		}
		return p.parsePropertyElements(object, scope)
	case "Literal":
		text, err := p.innerXML()
		if err != nil {
			return err
		}
		object := store.TypedLiteral(text, store.NamespaceRDF+"XMLLiteral")
		return p.emit(store.NewTriple(subject, predicate, object))
	}

	var object store.Node
	if resource, ok := rdfAttr(el.Attr, "resource"); ok {
		object = store.IRI(store.ResolveIRI(scope.base, resource))
	} else if nodeID, ok := rdfAttr(el.Attr, "nodeID"); ok {
		object = store.Blank("d" + nodeID)
	}

	if !object.IsZero() || hasPropertyAttrs(el.Attr) {
		// An empty property element: its attributes describe the object.
		if object.IsZero() {
			object = p.freshBlank()
		}
		if err := p.emit(store.NewTriple(subject, predicate, object)); err != nil {
			return err
		}
		if err := p.emitPropertyAttrs(object, el.Attr, scope); err != nil {
			return err
		}
		return p.skipElement()
	}

	var text strings.Builder
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			nested, err := p.parseNodeElement(t, scope)
			if err != nil {
				return err
			}
			if err := p.skipElement(); err != nil {
				return err
			}
			return p.emit(store.NewTriple(subject, predicate, nested))
		case xml.EndElement:
			var literal store.Node
			if datatype, ok := rdfAttr(el.Attr, "datatype"); ok {
				literal = store.TypedLiteral(text.String(), store.ResolveIRI(scope.base, datatype))
			} else {
				literal = p.plainLiteral(text.String(), scope)
			}
			return p.emit(store.NewTriple(subject, predicate, literal))
		}
	}
}

// skipElement consumes tokens up to and including the end of the current
// element.
func (p *rdfxmlParser) skipElement() error {
	depth := 0
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

// innerXML re-encodes the element content for a Literal parse type.
func (p *rdfxmlParser) innerXML() (string, error) {
	var builder strings.Builder
	enc := xml.NewEncoder(&builder)
	depth := 0
	for {
		tok, err := p.token()
		if err != nil {
			return "", err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				if err := enc.Flush(); err != nil {
					return "", err
				}
				return builder.String(), nil
			}
			depth--
		}
		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return "", err
		}
	}
}

func isRDFName(name xml.Name, local string) bool {
	return name.Space == store.NamespaceRDF && name.Local == local
}

func rdfAttr(attrs []xml.Attr, local string) (string, bool) {
	for _, attr := range attrs {
		if isRDFName(attr.Name, local) {
			return attr.Value, true
		}
	}
	return "", false
}

func isSyntaxAttr(name xml.Name) bool {
	if name.Space == xmlNamespace || name.Space == "xmlns" || (name.Space == "" && name.Local == "xmlns") {
		return true
	}
	if name.Space == store.NamespaceRDF {
		switch name.Local {
		case "about", "ID", "nodeID", "resource", "datatype", "parseType":
			return true
		}
	}
	return false
}

func hasPropertyAttrs(attrs []xml.Attr) bool {
	for _, attr := range attrs {
		if !isSyntaxAttr(attr.Name) {
			return true
		}
	}
	return false
}
