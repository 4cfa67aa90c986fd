// Package store provides in-memory RDF graphs: typed nodes, indexed triple
// stores, named-graph datasets and scoped loading from serialized sources.
package store

// Namespace URIs used by catalogs, alignments and the reasoner.
const (
	NamespaceRDF    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NamespaceRDFS   = "http://www.w3.org/2000/01/rdf-schema#"
	NamespaceOWL    = "http://www.w3.org/2002/07/owl#"
	NamespaceXSD    = "http://www.w3.org/2001/XMLSchema#"
	NamespaceDCAT   = "http://www.w3.org/ns/dcat#"
	NamespaceDCT    = "http://purl.org/dc/terms/"
	NamespaceDCType = "http://purl.org/dc/dcmitype/"
	NamespaceFOAF   = "http://xmlns.com/foaf/0.1/"
	NamespaceSKOS   = "http://www.w3.org/2004/02/skos/core#"
	NamespaceVCard  = "http://www.w3.org/2006/vcard/ns#"
)

// Datatype IRIs with special handling in literals.
const (
	XSDString     = NamespaceXSD + "string"
	XSDInteger    = NamespaceXSD + "integer"
	XSDDecimal    = NamespaceXSD + "decimal"
	XSDDouble     = NamespaceXSD + "double"
	XSDBoolean    = NamespaceXSD + "boolean"
	RDFLangString = NamespaceRDF + "langString"
)

// RDF and RDFS vocabulary.
var (
	RDFType       = IRI(NamespaceRDF + "type")
	RDFValue      = IRI(NamespaceRDF + "value")
	RDFSLabel     = IRI(NamespaceRDFS + "label")
	RDFSComment   = IRI(NamespaceRDFS + "comment")
	RDFSSubClass  = IRI(NamespaceRDFS + "subClassOf")
	RDFSSubProp   = IRI(NamespaceRDFS + "subPropertyOf")
	RDFSDomain    = IRI(NamespaceRDFS + "domain")
	RDFSRange     = IRI(NamespaceRDFS + "range")
	RDFSClass     = IRI(NamespaceRDFS + "Class")
	RDFProperty   = IRI(NamespaceRDF + "Property")
	RDFSResource  = IRI(NamespaceRDFS + "Resource")
	RDFSSeeAlso   = IRI(NamespaceRDFS + "seeAlso")
	RDFSIsDefined = IRI(NamespaceRDFS + "isDefinedBy")
)

// OWL vocabulary understood by the rule reasoner.
var (
	OWLSameAs             = IRI(NamespaceOWL + "sameAs")
	OWLEquivalentClass    = IRI(NamespaceOWL + "equivalentClass")
	OWLEquivalentProperty = IRI(NamespaceOWL + "equivalentProperty")
	OWLInverseOf          = IRI(NamespaceOWL + "inverseOf")
	OWLSymmetricProperty  = IRI(NamespaceOWL + "SymmetricProperty")
	OWLTransitiveProperty = IRI(NamespaceOWL + "TransitiveProperty")
)

// DCAT and Dublin Core terms read by the catalog loader.
var (
	DCATDistribution = IRI(NamespaceDCAT + "distribution")
	DCATDownloadURL  = IRI(NamespaceDCAT + "downloadURL")
	DCATAccessURL    = IRI(NamespaceDCAT + "accessURL")
	DCATMediaType    = IRI(NamespaceDCAT + "mediaType")
	DCATDataset      = IRI(NamespaceDCAT + "Dataset")
	DCATKeyword      = IRI(NamespaceDCAT + "keyword")
	DCTFormat        = IRI(NamespaceDCT + "format")
	DCTTitle         = IRI(NamespaceDCT + "title")
)

// FOAF terms.
var (
	FOAFPerson = IRI(NamespaceFOAF + "Person")
	FOAFName   = IRI(NamespaceFOAF + "name")
	FOAFKnows  = IRI(NamespaceFOAF + "knows")
)
