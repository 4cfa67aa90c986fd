package format

// Names of the built-in formats.
const (
	NameNTriples = "N-Triples"
	NameTurtle   = "Turtle"
	NameJSONLD   = "JSON-LD"
	NameRDFXML   = "RDF/XML"
)

type builtin struct {
	name       string
	mediaType  string
	factory    ParserFactory
	writer     Writer
	extensions []string
}

var builtins = []builtin{
	{NameTurtle, "text/turtle", NewTurtleParser, TurtleWriter{}, []string{"ttl"}},
	{NameNTriples, "application/n-triples", NewNTriplesParser, NTriplesWriter{}, []string{"nt"}},
	{NameJSONLD, "application/ld+json", NewJSONLDParser, JSONLDWriter{}, []string{"jsonld", "json"}},
	{NameRDFXML, "application/rdf+xml", NewRDFXMLParser, RDFXMLWriter{}, []string{"rdf", "owl", "xml"}},
}

// InstallDefaults installs the built-in formats and their writers. Formats
// already installed under the same name are left as they are.
func InstallDefaults(reg *Registry) error {
	for _, b := range builtins {
		if reg.IsInstalled(b.name) {
			continue
		}
		if err := reg.InstallFormat(b.name, b.mediaType, b.factory, b.extensions...); err != nil {
			return err
		}
		if err := reg.SetWriter(b.name, b.writer); err != nil {
			return err
		}
	}
	return nil
}
