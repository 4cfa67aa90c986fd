package format

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/piprate/json-gold/ld"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// JSONLDParser reads JSON-LD by converting it to N-Quads with json-gold and
// parsing the result. Remote contexts are fetched with the given client.
type JSONLDParser struct {
	client *http.Client
}

// NewJSONLDParser is the ParserFactory for JSON-LD.
func NewJSONLDParser() store.Parser { return JSONLDParser{} }

// JSONLDParserWithClient returns a factory whose parsers fetch remote
// contexts with client.
func JSONLDParserWithClient(client *http.Client) ParserFactory {
	return func() store.Parser { return JSONLDParser{client: client} }
}

func (p JSONLDParser) Parse(ctx context.Context, r io.Reader, base string, emit func(store.Triple) error) error {
	var document any
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return fmt.Errorf("jsonld: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions(base)
	options.DocumentLoader = ld.NewDefaultDocumentLoader(p.client)

	result, err := proc.ToRDF(document, options)
	if err != nil {
		return fmt.Errorf("jsonld: %w", err)
	}
	dataset, ok := result.(*ld.RDFDataset)
	if !ok {
		return fmt.Errorf("jsonld: unexpected ToRDF result %T", result)
	}

	serialized, err := (&ld.NQuadRDFSerializer{}).Serialize(dataset)
	if err != nil {
		return fmt.Errorf("jsonld: %w", err)
	}
	nquads, ok := serialized.(string)
	if !ok {
		return fmt.Errorf("jsonld: unexpected N-Quads result %T", serialized)
	}
	return NTriplesParser{}.Parse(ctx, strings.NewReader(nquads), "", emit)
}

// JSONLDWriter writes a graph as compacted JSON-LD whose context maps the
// supplied prefixes.
type JSONLDWriter struct{}

func (JSONLDWriter) Write(w io.Writer, g store.Graph, prefixes map[string]string) error {
	var builder strings.Builder
	if err := (NTriplesWriter{}).Write(&builder, g, nil); err != nil {
		return err
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")
	options.Format = "application/n-quads"

	expanded, err := proc.FromRDF(builder.String(), options)
	if err != nil {
		return fmt.Errorf("jsonld: %w", err)
	}

	contextMap := make(map[string]any, len(prefixes))
	for prefix, namespace := range prefixes {
		contextMap[prefix] = namespace
	}
	compacted, err := proc.Compact(expanded, map[string]any{"@context": contextMap}, ld.NewJsonLdOptions(""))
	if err != nil {
		return fmt.Errorf("jsonld: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(compacted)
}
