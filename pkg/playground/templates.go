// Package playground provides pre-built SPARQL query templates for
// exploring a loaded catalog, its dataset and the inferred view.
package playground

import (
	"fmt"
	"sort"
	"strings"
)

// Graphs a template can target.
const (
	GraphCatalog  = "catalog"
	GraphData     = "data"
	GraphInferred = "inferred"
)

// TemplateParameter describes a named parameter a template accepts.
type TemplateParameter struct {
	Name        string // parameter name (e.g., "match")
	Description string // human-readable description
	Required    bool   // whether the parameter must be supplied
	// Filter is the FILTER clause added when the parameter has a value; %s
	// stands for the value as a quoted string literal.
	Filter string
}

// Template holds a pre-built query.
type Template struct {
	Name        string              // unique slug (e.g., "distributions")
	Description string              // one-line description
	Graph       string              // graph the query is meant for
	Query       string              // SPARQL query string, may contain one %s placeholder
	Parameters  []TemplateParameter // parameters for substitution
}

var templateRegistry = map[string]Template{
	"datasets": {
		Name:        "datasets",
		Description: "Datasets with their titles",
		Graph:       GraphCatalog,
		Query: `SELECT ?dataset ?title WHERE {
  ?dataset a dcat:Dataset .
  OPTIONAL { ?dataset dct:title ?title . }
  %s
} ORDER BY ?dataset`,
		Parameters: []TemplateParameter{
			{
				Name:        "match",
				Description: "Keep titles containing this text (case-insensitive)",
				Filter:      `FILTER(CONTAINS(LCASE(STR(?title)), LCASE(%s)))`,
			},
		},
	},

	"distributions": {
		Name:        "distributions",
		Description: "Distributions with their URLs and declared media types",
		Graph:       GraphCatalog,
		Query: `SELECT ?dataset ?dist ?download ?access ?mediaType WHERE {
  ?dataset dcat:distribution ?dist .
  OPTIONAL { ?dist dcat:downloadURL ?download . }
  OPTIONAL { ?dist dcat:accessURL ?access . }
  OPTIONAL { ?dist dcat:mediaType ?mediaType . }
} ORDER BY ?dataset ?dist`,
	},

	"missing-download": {
		Name:        "missing-download",
		Description: "Distributions without a download URL",
		Graph:       GraphCatalog,
		Query: `SELECT ?dist ?access WHERE {
  ?dataset dcat:distribution ?dist .
  OPTIONAL { ?dist dcat:downloadURL ?download . }
  OPTIONAL { ?dist dcat:accessURL ?access . }
  FILTER(!BOUND(?download))
} ORDER BY ?dist`,
	},

	"media-types": {
		Name:        "media-types",
		Description: "Declared media types",
		Graph:       GraphCatalog,
		Query: `SELECT DISTINCT ?mediaType WHERE {
  ?dist dcat:mediaType ?mediaType .
} ORDER BY ?mediaType`,
	},

	"publishers": {
		Name:        "publishers",
		Description: "Dataset publishers and their names",
		Graph:       GraphCatalog,
		Query: `SELECT ?dataset ?publisher ?name WHERE {
  ?dataset dct:publisher ?publisher .
  OPTIONAL { ?publisher foaf:name ?name . }
} ORDER BY ?dataset`,
	},

	"keywords": {
		Name:        "keywords",
		Description: "Dataset keywords",
		Graph:       GraphCatalog,
		Query: `SELECT ?dataset ?keyword WHERE {
  ?dataset dcat:keyword ?keyword .
  %s
} ORDER BY ?keyword ?dataset`,
		Parameters: []TemplateParameter{
			{
				Name:        "match",
				Description: "Keep keywords starting with this text",
				Filter:      `FILTER(STRSTARTS(STR(?keyword), %s))`,
			},
		},
	},

	"types": {
		Name:        "types",
		Description: "Classes used in the dataset",
		Graph:       GraphData,
		Query: `SELECT DISTINCT ?type WHERE {
  ?s a ?type .
} ORDER BY ?type`,
	},

	"people": {
		Name:        "people",
		Description: "People and their names, including inferred ones",
		Graph:       GraphInferred,
		Query: `SELECT DISTINCT ?person ?name WHERE {
  ?person a foaf:Person .
  OPTIONAL { ?person foaf:name ?name . }
} ORDER BY ?person`,
	},

	"friends": {
		Name:        "friends",
		Description: "Names of the people a person knows",
		Graph:       GraphInferred,
		Query: `SELECT DISTINCT ?name WHERE {
  ?person foaf:knows ?friend .
  ?friend foaf:name ?name .
  %s
} ORDER BY ?name`,
		Parameters: []TemplateParameter{
			{
				Name:        "person",
				Description: "IRI of the person",
				Required:    true,
				Filter:      `FILTER(STR(?person) = %s)`,
			},
		},
	},
}

// Registry returns all templates keyed by name.
func Registry() map[string]Template {
	return templateRegistry
}

// TemplateNames returns template names in sorted order for consistent listing.
func TemplateNames() []string {
	names := make([]string, 0, len(templateRegistry))
	for name := range templateRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a template by name, or false if not found.
func Get(name string) (Template, bool) {
	template, exists := templateRegistry[name]
	return template, exists
}

// RenderQuery substitutes parameters into the template query string.
// parameterValues maps parameter name to value. Missing optional parameters
// add no filter; missing required parameters return an error.
func RenderQuery(template Template, parameterValues map[string]string) (string, error) {
	var clauses []string
	for _, parameter := range template.Parameters {
		value := parameterValues[parameter.Name]
		if value == "" {
			if parameter.Required {
				return "", fmt.Errorf("required parameter %s not provided: %s", parameter.Name, parameter.Description)
			}
			continue
		}
		clauses = append(clauses, fmt.Sprintf(parameter.Filter, quote(value)))
	}

	if !strings.Contains(template.Query, "%s") {
		return template.Query, nil
	}
	return fmt.Sprintf(template.Query, strings.Join(clauses, "\n  ")), nil
}

// quote renders value as a SPARQL string literal.
func quote(value string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(value) + `"`
}
