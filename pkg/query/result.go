package query

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// QueryResult is a fully collected query result.
type QueryResult struct {
	Variables []string     // Column names (without ?)
	Bindings  []Row        // One row per solution
	Count     int          // Number of result rows
	Metrics   QueryMetrics // Execution metrics
}

// QueryMetrics contains performance metrics for query execution.
type QueryMetrics struct {
	ParseTime     time.Duration `json:"parse_time"`
	PlanTime      time.Duration `json:"plan_time"`
	ExecuteTime   time.Duration `json:"execute_time"`
	TotalTime     time.Duration `json:"total_time"`
	PatternsCount int           `json:"patterns_count"`
	ResultCount   int           `json:"result_count"`
}

// OutputFormat names a result rendering.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// Format formats the query result in the specified format.
func (r *QueryResult) Format(format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return r.FormatJSON()
	case FormatCSV:
		return r.FormatCSV()
	case FormatTable:
		return r.FormatTable(), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// FormatTable formats the result as an ASCII table. Cells use N-Triples
// term syntax; unbound cells are empty.
func (r *QueryResult) FormatTable() string {
	if len(r.Variables) == 0 || len(r.Bindings) == 0 {
		return fmt.Sprintf("No results (%d rows)\n", r.Count)
	}

	cells := make([][]string, len(r.Bindings))
	widths := make([]int, len(r.Variables))
	for i, v := range r.Variables {
		widths[i] = len(v)
	}
	for row, binding := range r.Bindings {
		cells[row] = make([]string, len(r.Variables))
		for i, v := range r.Variables {
			cell := binding[v].String()
			cells[row][i] = cell
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sep strings.Builder
	sep.WriteString("+")
	for _, w := range widths {
		sep.WriteString(strings.Repeat("-", w+2))
		sep.WriteString("+")
	}
	sep.WriteString("\n")

	var sb strings.Builder
	sb.WriteString(sep.String())
	sb.WriteString("|")
	for i, v := range r.Variables {
		sb.WriteString(fmt.Sprintf(" %-*s |", widths[i], v))
	}
	sb.WriteString("\n")
	sb.WriteString(sep.String())

	for _, row := range cells {
		sb.WriteString("|")
		for i, cell := range row {
			sb.WriteString(fmt.Sprintf(" %-*s |", widths[i], cell))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(sep.String())

	sb.WriteString(fmt.Sprintf("%d rows\n", r.Count))
	return sb.String()
}

// jsonTerm is a bound value in the JSON rendering, shaped like the W3C
// SPARQL results format.
type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

func toJSONTerm(n store.Node) jsonTerm {
	switch n.Kind {
	case store.KindIRI:
		return jsonTerm{Type: "uri", Value: n.Value}
	case store.KindBlank:
		return jsonTerm{Type: "bnode", Value: n.Value}
	default:
		return jsonTerm{Type: "literal", Value: n.Value, Datatype: n.Datatype, Lang: n.Lang}
	}
}

// FormatJSON formats the result as JSON. Unbound variables are omitted from
// their row's object.
func (r *QueryResult) FormatJSON() (string, error) {
	type jsonResult struct {
		Variables []string              `json:"variables"`
		Bindings  []map[string]jsonTerm `json:"bindings"`
		Count     int                   `json:"count"`
	}

	result := jsonResult{
		Variables: r.Variables,
		Bindings:  make([]map[string]jsonTerm, 0, len(r.Bindings)),
		Count:     r.Count,
	}
	for _, binding := range r.Bindings {
		row := make(map[string]jsonTerm)
		for _, v := range r.Variables {
			if n, ok := binding.Get(v); ok {
				row[v] = toJSONTerm(n)
			}
		}
		result.Bindings = append(result.Bindings, row)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatCSV formats the result as CSV with plain values: IRIs and literals
// without delimiters, blank nodes as _:label.
func (r *QueryResult) FormatCSV() (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	if err := writer.Write(r.Variables); err != nil {
		return "", err
	}

	for _, binding := range r.Bindings {
		row := make([]string, len(r.Variables))
		for i, v := range r.Variables {
			n := binding[v]
			if n.IsBlank() {
				row[i] = "_:" + n.Value
			} else {
				row[i] = n.Value
			}
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return sb.String(), nil
}
