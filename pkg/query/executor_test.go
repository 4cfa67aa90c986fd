package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

const exNS = "http://example.org/"

func ex(local string) store.Node { return store.IRI(exNS + local) }

func integer(lexical string) store.Node { return store.TypedLiteral(lexical, store.XSDInteger) }

func setupTestStore() *store.TripleStore {
	ts := store.NewNamedGraph("people", exNS)
	age := ex("age")

	triples := []store.Triple{
		store.NewTriple(ex("alice"), store.RDFType, store.FOAFPerson),
		store.NewTriple(ex("alice"), store.FOAFName, store.Literal("Alice")),
		store.NewTriple(ex("alice"), store.FOAFKnows, ex("bob")),
		store.NewTriple(ex("alice"), store.FOAFKnows, ex("carol")),
		store.NewTriple(ex("alice"), age, integer("34")),

		store.NewTriple(ex("bob"), store.RDFType, store.FOAFPerson),
		store.NewTriple(ex("bob"), store.FOAFName, store.Literal("Bob")),
		store.NewTriple(ex("bob"), store.FOAFKnows, ex("carol")),
		store.NewTriple(ex("bob"), age, integer("27")),

		store.NewTriple(ex("carol"), store.RDFType, store.FOAFPerson),
		store.NewTriple(ex("carol"), store.FOAFName, store.LangLiteral("Carol", "en")),
		store.NewTriple(ex("carol"), age, integer("41")),

		store.NewTriple(ex("dave"), store.RDFType, store.FOAFPerson),
	}
	if err := ts.BulkAdd(triples); err != nil {
		panic(err)
	}
	return ts
}

func mustRun(t *testing.T, executor *Executor, graph store.Graph, body string) *QueryResult {
	t.Helper()
	result, err := executor.ExecuteString(context.Background(), testPrefixes+body, graph)
	if err != nil {
		t.Fatalf("ExecuteString() error = %v", err)
	}
	return result
}

// column returns the lexical values of one column, in row order.
func column(result *QueryResult, name string) []string {
	values := make([]string, len(result.Bindings))
	for i, row := range result.Bindings {
		values[i] = row[name].Value
	}
	return values
}

func TestExecutor_SimpleSelect(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `SELECT ?p WHERE { ?p a foaf:Person . }`)

	if result.Count != 4 {
		t.Errorf("Count = %d, want 4", result.Count)
	}
	if len(result.Variables) != 1 || result.Variables[0] != "p" {
		t.Errorf("Variables = %v, want [p]", result.Variables)
	}
}

func TestExecutor_MultiplePatterns(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `
		SELECT ?p ?n WHERE {
			?p foaf:knows ?f .
			?f foaf:name ?n .
		} ORDER BY ?p ?n`)

	if result.Count != 3 {
		t.Fatalf("Count = %d, want 3", result.Count)
	}
	got := strings.Join(column(result, "n"), ",")
	if got != "Bob,Carol,Carol" {
		t.Errorf("names = %s, want Bob,Carol,Carol", got)
	}
	if n := result.Bindings[1]["n"]; n != store.LangLiteral("Carol", "en") {
		t.Errorf("language tag lost: %v", n)
	}
}

func TestExecutor_PlanningDoesNotChangeResults(t *testing.T) {
	body := `SELECT ?p ?f WHERE { ?p a foaf:Person . ?p foaf:knows ?f . ?f ex:age ?age . } ORDER BY ?p ?f`
	planned := mustRun(t, NewExecutor(WithPlanning(true)), setupTestStore(), body)
	unplanned := mustRun(t, NewExecutor(WithPlanning(false)), setupTestStore(), body)

	if planned.Count != 3 || unplanned.Count != 3 {
		t.Fatalf("Count = %d/%d, want 3/3", planned.Count, unplanned.Count)
	}
	for i := range planned.Bindings {
		if planned.Bindings[i]["f"] != unplanned.Bindings[i]["f"] {
			t.Errorf("row %d differs: %v vs %v", i, planned.Bindings[i], unplanned.Bindings[i])
		}
	}
}

func TestExecutor_SelectAll(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `SELECT * WHERE { ex:bob ?p ?o . }`)

	if result.Count != 4 {
		t.Errorf("Count = %d, want 4", result.Count)
	}
	if strings.Join(result.Variables, ",") != "p,o" {
		t.Errorf("Variables = %v, want [p o]", result.Variables)
	}
}

func TestExecutor_LimitOffset(t *testing.T) {
	tests := []struct {
		name     string
		modifier string
		want     string
	}{
		{"limit", "LIMIT 2", "Alice,Bob"},
		{"offset", "OFFSET 2", "Carol"},
		{"limit and offset", "LIMIT 1 OFFSET 1", "Bob"},
		{"limit zero", "LIMIT 0", ""},
		{"offset past end", "OFFSET 10", ""},
	}

	executor := NewExecutor()
	ts := setupTestStore()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustRun(t, executor, ts, `SELECT ?n WHERE { ?p foaf:name ?n } ORDER BY ?n `+tt.modifier)
			if got := strings.Join(column(result, "n"), ","); got != tt.want {
				t.Errorf("names = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutor_WithDistinct(t *testing.T) {
	executor := NewExecutor()
	ts := setupTestStore()

	all := mustRun(t, executor, ts, `SELECT ?f WHERE { ?p foaf:knows ?f }`)
	distinct := mustRun(t, executor, ts, `SELECT DISTINCT ?f WHERE { ?p foaf:knows ?f }`)

	if all.Count != 3 {
		t.Errorf("without DISTINCT Count = %d, want 3", all.Count)
	}
	if distinct.Count != 2 {
		t.Errorf("with DISTINCT Count = %d, want 2", distinct.Count)
	}
}

func TestExecutor_DistinctWithLimit(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(),
		`SELECT DISTINCT ?f WHERE { ?p foaf:knows ?f } ORDER BY DESC(?f) LIMIT 1`)
	if result.Count != 1 || result.Bindings[0]["f"] != ex("carol") {
		t.Errorf("Bindings = %v, want [carol]", result.Bindings)
	}
}

func TestExecutor_WithOrderBy(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `SELECT ?n WHERE { ?p foaf:name ?n } ORDER BY ?n`)
	if got := strings.Join(column(result, "n"), ","); got != "Alice,Bob,Carol" {
		t.Errorf("names = %s, want Alice,Bob,Carol", got)
	}
}

func TestExecutor_WithOrderByDescNumeric(t *testing.T) {
	ts := setupTestStore()
	if err := ts.Add(storeTriple("erin", "age", integer("100"))); err != nil {
		t.Fatal(err)
	}
	result := mustRun(t, NewExecutor(), ts, `SELECT ?a WHERE { ?p ex:age ?a } ORDER BY DESC(?a)`)

	// Lexically "100" is the smallest age.
	if got := strings.Join(column(result, "a"), ","); got != "100,41,34,27" {
		t.Errorf("ages = %s, want 100,41,34,27", got)
	}
}

func storeTriple(subject, predicate string, object store.Node) store.Triple {
	return store.NewTriple(ex(subject), ex(predicate), object)
}

func TestExecutor_UnboundSortsFirst(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `
		SELECT ?p ?n WHERE { ?p a foaf:Person OPTIONAL { ?p foaf:name ?n } } ORDER BY ?n`)
	if result.Count != 4 {
		t.Fatalf("Count = %d, want 4", result.Count)
	}
	if result.Bindings[0]["p"] != ex("dave") {
		t.Errorf("first row = %v, want dave with unbound name", result.Bindings[0])
	}
}

func TestExecutor_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{"contains", `CONTAINS(?n, "o")`, "Bob,Carol"},
		{"regex case-insensitive", `REGEX(?n, "^a", "i")`, "Alice"},
		{"regex case-sensitive", `REGEX(?n, "^a")`, ""},
		{"strstarts", `STRSTARTS(?n, "Ca")`, "Carol"},
		{"strends", `STRENDS(?n, "ce")`, "Alice"},
		{"numeric greater", `?age > 30`, "Alice,Carol"},
		{"numeric range", `?age >= 27 && ?age <= 34`, "Alice,Bob"},
		{"numeric equality", `?age = 27`, "Bob"},
		{"or", `?n = "Alice" || ?age = 41`, "Alice,Carol"},
		{"not", `!(?age > 30)`, "Bob"},
		{"lang", `LANG(?n) = "en"`, "Carol"},
		{"langmatches", `LANGMATCHES(LANG(?n), "*")`, "Carol"},
		{"string inequality", `?n != "Bob"`, "Alice,Carol"},
		{"str", `STR(?p) = "http://example.org/bob"`, "Bob"},
		{"lcase", `LCASE(STR(?n)) = "carol"`, "Carol"},
		{"strlen", `STRLEN(?n) = 3`, "Bob"},
		{"isIRI", `isIRI(?p)`, "Alice,Bob,Carol"},
		{"isLiteral", `isLiteral(?p)`, ""},
		{"sameTerm", `sameTerm(?p, ex:alice)`, "Alice"},
		{"error is false", `?n > 3`, ""},
	}

	executor := NewExecutor()
	ts := setupTestStore()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustRun(t, executor, ts, `
				SELECT ?n WHERE {
					?p foaf:name ?n ; ex:age ?age .
					FILTER(`+tt.filter+`)
				} ORDER BY ?n`)
			if got := strings.Join(column(result, "n"), ","); got != tt.want {
				t.Errorf("FILTER(%s) = %q, want %q", tt.filter, got, tt.want)
			}
		})
	}
}

func TestExecutor_SpecificSubject(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `SELECT ?n WHERE { ex:alice foaf:name ?n }`)
	if result.Count != 1 || result.Bindings[0]["n"] != store.Literal("Alice") {
		t.Errorf("Bindings = %v, want [Alice]", result.Bindings)
	}
}

func TestExecutor_NoResults(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `SELECT ?p WHERE { ?p a ex:Robot }`)
	if result.Count != 0 {
		t.Errorf("Count = %d, want 0", result.Count)
	}
}

func TestExecutor_RepeatedVariable(t *testing.T) {
	ts := setupTestStore()
	if err := ts.Add(store.NewTriple(ex("bob"), store.FOAFKnows, ex("bob"))); err != nil {
		t.Fatal(err)
	}
	result := mustRun(t, NewExecutor(), ts, `SELECT ?p WHERE { ?p foaf:knows ?p }`)
	if result.Count != 1 || result.Bindings[0]["p"] != ex("bob") {
		t.Errorf("Bindings = %v, want [bob]", result.Bindings)
	}
}

func TestExecutor_WithOptional(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `
		SELECT ?p ?n WHERE {
			?p a foaf:Person .
			OPTIONAL { ?p foaf:name ?n . }
		}`)

	if result.Count != 4 {
		t.Fatalf("Count = %d, want 4", result.Count)
	}
	for _, row := range result.Bindings {
		n, present := row["n"]
		if !present {
			t.Errorf("row %v omits ?n, want it present and unbound", row)
		}
		if row["p"] == ex("dave") {
			if row.Bound("n") || !n.IsZero() {
				t.Errorf("dave's name = %v, want unbound", n)
			}
		} else if !row.Bound("n") {
			t.Errorf("row %v: name should be bound", row)
		}
	}
}

func TestExecutor_OptionalRowCountMatchesRequiredPart(t *testing.T) {
	executor := NewExecutor()
	ts := setupTestStore()

	required := mustRun(t, executor, ts, `SELECT ?p WHERE { ?p a foaf:Person }`)
	combined := mustRun(t, executor, ts, `
		SELECT DISTINCT ?p WHERE { ?p a foaf:Person OPTIONAL { ?p foaf:knows ?f } }`)

	if required.Count != combined.Count {
		t.Errorf("distinct rows with OPTIONAL = %d, rows without = %d", combined.Count, required.Count)
	}
}

func TestExecutor_OptionalOverlappingVariable(t *testing.T) {
	ts := store.NewNamedGraph("catalog", exNS)
	download := store.IRI(store.NamespaceDCAT + "downloadURL")
	access := store.IRI(store.NamespaceDCAT + "accessURL")
	_ = ts.BulkAdd([]store.Triple{
		store.NewTriple(ex("d1"), download, ex("d1.ttl")),
		store.NewTriple(ex("d1"), access, ex("landing")),
		store.NewTriple(ex("d2"), access, ex("d2.rdf")),
		store.NewTriple(ex("d3"), store.RDFType, ex("Distribution")),
	})

	result := mustRun(t, NewExecutor(), ts, `
		PREFIX dcat: <http://www.w3.org/ns/dcat#>
		SELECT ?d ?url WHERE {
			?d ?p ?o .
			OPTIONAL { ?d dcat:downloadURL ?url }
			OPTIONAL { ?d dcat:accessURL ?url }
		} ORDER BY ?d`)

	urls := map[string]string{}
	for _, row := range result.Bindings {
		urls[row["d"].Value] = row["url"].Value
	}
	want := map[string]string{
		exNS + "d1": exNS + "d1.ttl",
		exNS + "d2": exNS + "d2.rdf",
		exNS + "d3": "",
	}
	for d, url := range want {
		if urls[d] != url {
			t.Errorf("url(%s) = %q, want %q", d, urls[d], url)
		}
	}
}

func TestExecutor_OptionalFilterConstrainsJoin(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `
		SELECT ?p ?f WHERE {
			?p a foaf:Person .
			OPTIONAL { ?p foaf:knows ?f FILTER(?f = ex:carol) }
		} ORDER BY ?p`)

	if result.Count != 4 {
		t.Fatalf("Count = %d, want 4", result.Count)
	}
	for _, row := range result.Bindings {
		if f, ok := row.Get("f"); ok && f != ex("carol") {
			t.Errorf("row %v escaped the OPTIONAL filter", row)
		}
	}
}

func TestExecutor_NotBound(t *testing.T) {
	result := mustRun(t, NewExecutor(), setupTestStore(), `
		SELECT ?p WHERE {
			?p a foaf:Person .
			OPTIONAL { ?p foaf:name ?n }
			FILTER(!BOUND(?n))
		}`)
	if result.Count != 1 || result.Bindings[0]["p"] != ex("dave") {
		t.Errorf("Bindings = %v, want [dave]", result.Bindings)
	}
}

type staticPreamble string

func (s staticPreamble) Preamble() string { return string(s) }

func TestExecutor_Preamble(t *testing.T) {
	executor := NewExecutor(WithPreamble(staticPreamble("PREFIX people: <http://example.org/>\n")))

	prepared, err := executor.Prepare(`SELECT ?n WHERE { people:bob <http://xmlns.com/foaf/0.1/name> ?n }`, setupTestStore())
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !strings.HasPrefix(prepared.Query.Text, "PREFIX people:") {
		t.Errorf("Query.Text = %q, want the preamble first", prepared.Query.Text)
	}

	result, err := prepared.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Count != 1 {
		t.Errorf("Count = %d, want 1", result.Count)
	}
}

func TestExecutor_PrepareFailsFast(t *testing.T) {
	executor := NewExecutor()

	_, err := executor.Prepare(`SELECT ?n WHERE { ?p foaf:name ?n }`, setupTestStore())
	if errs.CodeOf(err) != errs.CodeUnresolvedPrefix {
		t.Errorf("Prepare() error = %v, want unresolved_prefix", err)
	}

	_, err = executor.Prepare(`SELECT ?n WHERE { ?p ?q ?n `, setupTestStore())
	if errs.CodeOf(err) != errs.CodeSyntax {
		t.Errorf("Prepare() error = %v, want syntax", err)
	}

	_, err = executor.Prepare(`SELECT ?n WHERE { ?p ?q ?n }`, nil)
	if !errs.IsQueryError(err) {
		t.Errorf("Prepare(nil graph) error = %v, want QueryError", err)
	}
}

func TestPrepared_ObservesLaterMutations(t *testing.T) {
	ts := setupTestStore()
	prepared, err := NewExecutor().Prepare(testPrefixes+`SELECT ?p WHERE { ?p a foaf:Person }`, ts)
	if err != nil {
		t.Fatal(err)
	}

	before, err := prepared.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := ts.Add(store.NewTriple(ex("erin"), store.RDFType, store.FOAFPerson)); err != nil {
		t.Fatal(err)
	}
	after, err := prepared.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if after.Count != before.Count+1 {
		t.Errorf("Count after Add = %d, want %d", after.Count, before.Count+1)
	}
}

// countingGraph counts Find calls to observe how much work a cursor did.
type countingGraph struct {
	store.Graph
	finds int
}

func (g *countingGraph) Find(s, p, o store.Node) []store.Triple {
	g.finds++
	return g.Graph.Find(s, p, o)
}

func TestRows_Lazy(t *testing.T) {
	graph := &countingGraph{Graph: setupTestStore()}
	prepared, err := NewExecutor(WithPlanning(false)).Prepare(testPrefixes+`
		SELECT ?p ?n WHERE { ?p a foaf:Person . ?p foaf:name ?n }`, graph)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := prepared.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if graph.finds != 0 {
		t.Errorf("finds before Next = %d, want 0", graph.finds)
	}

	if !rows.Next() {
		t.Fatalf("Next() = false, err = %v", rows.Err())
	}
	if got := rows.Row()["n"]; got != store.Literal("Alice") {
		t.Errorf("first row name = %v, want Alice", got)
	}
	if graph.finds != 2 {
		t.Errorf("finds after first row = %d, want 2", graph.finds)
	}

	if err := rows.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if rows.Next() {
		t.Error("Next() after Close = true")
	}
	if err := rows.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if graph.finds != 2 {
		t.Errorf("finds after Close = %d, want 2", graph.finds)
	}
	if rows.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rows.Count())
	}
}

func TestRows_DrainCloses(t *testing.T) {
	prepared, err := NewExecutor().Prepare(testPrefixes+`SELECT ?p WHERE { ?p a foaf:Person }`, setupTestStore())
	if err != nil {
		t.Fatal(err)
	}
	rows, err := prepared.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for rows.Next() {
		n++
	}
	if n != 4 || rows.Err() != nil {
		t.Errorf("rows = %d, err = %v; want 4, nil", n, rows.Err())
	}
	if rows.Next() {
		t.Error("Next() after exhaustion = true")
	}
}

func TestExecutor_ExpiredDeadline(t *testing.T) {
	prepared, err := NewExecutor().Prepare(testPrefixes+`SELECT ?p WHERE { ?p a foaf:Person }`, setupTestStore())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err = prepared.Execute(ctx)
	if errs.CodeOf(err) != errs.CodeTimeout {
		t.Errorf("Execute() error = %v, want timeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not wrap context.DeadlineExceeded", err)
	}
}

// cancellingGraph cancels the query context on its first Find.
type cancellingGraph struct {
	store.Graph
	cancel context.CancelFunc
}

func (g *cancellingGraph) Find(s, p, o store.Node) []store.Triple {
	g.cancel()
	return g.Graph.Find(s, p, o)
}

func TestExecutor_CancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	graph := &cancellingGraph{Graph: setupTestStore(), cancel: cancel}

	prepared, err := NewExecutor(WithPlanning(false)).Prepare(testPrefixes+`
		SELECT ?p ?n WHERE { ?p a foaf:Person . ?p foaf:name ?n }`, graph)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := prepared.Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	if rows.Next() {
		t.Fatal("Next() = true after cancellation")
	}
	if !errs.IsQueryError(rows.Err()) || !errors.Is(rows.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want QueryError wrapping context.Canceled", rows.Err())
	}
}

func TestExecutor_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	executor := NewExecutor(WithMetrics(m))
	ts := setupTestStore()

	result := mustRun(t, executor, ts, `SELECT ?p WHERE { ?p a foaf:Person }`)
	if result.Metrics.PatternsCount != 1 {
		t.Errorf("PatternsCount = %d, want 1", result.Metrics.PatternsCount)
	}
	if result.Metrics.ResultCount != 4 {
		t.Errorf("ResultCount = %d, want 4", result.Metrics.ResultCount)
	}
	if result.Metrics.TotalTime < result.Metrics.ExecuteTime {
		t.Errorf("TotalTime %v < ExecuteTime %v", result.Metrics.TotalTime, result.Metrics.ExecuteTime)
	}

	if _, err := executor.Prepare(`SELECT ?p WHERE { ?p a nope:Thing }`, ts); err == nil {
		t.Fatal("Prepare() succeeded for an undeclared prefix")
	}

	if got := queryCount(t, reg, "people", "success"); got != 1 {
		t.Errorf("successful queries = %v, want 1", got)
	}
	if got := queryCount(t, reg, "people", "error"); got != 1 {
		t.Errorf("failed queries = %v, want 1", got)
	}
}

func queryCount(t *testing.T, reg *prometheus.Registry, graph, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, family := range families {
		if family.GetName() != "dcatgraph_queries_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["graph"] == graph && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestQueryPlanner_OptimizePatterns(t *testing.T) {
	number := ex("number")
	stats := store.IndexStats{
		TotalTriples: 1000,
		PredicateCounts: map[store.Node]int{
			store.RDFType: 500,
			number:        100,
		},
		SubjectCounts: map[store.Node]int{},
		ObjectCounts: map[store.Node]int{
			ex("Dataset"): 500,
		},
	}

	planner := NewQueryPlanner(stats)
	patterns := []TriplePattern{
		{Variable("doc"), Fixed(store.RDFType), Fixed(ex("Dataset"))},
		{Variable("doc"), Fixed(number), Variable("n")},
	}

	optimized := planner.OptimizePatterns(patterns)
	if optimized[0].Predicate.Node != number {
		t.Errorf("Expected ex:number first (more selective), got %v", optimized[0].Predicate)
	}
	if patterns[0].Predicate.Node != store.RDFType {
		t.Error("OptimizePatterns modified its input")
	}
}

func TestQueryPlanner_AvoidsCrossProducts(t *testing.T) {
	knows, name := ex("knows"), ex("name")
	stats := store.IndexStats{
		TotalTriples: 1000,
		PredicateCounts: map[store.Node]int{
			store.RDFType: 10,
			knows:         900,
			name:          50,
		},
		SubjectCounts: map[store.Node]int{},
		ObjectCounts:  map[store.Node]int{},
	}

	// ?x type / ?y name are both cheap but unrelated; after ?x, the
	// connected ?x knows ?y must come before ?y name.
	patterns := []TriplePattern{
		{Variable("y"), Fixed(name), Variable("n")},
		{Variable("x"), Fixed(knows), Variable("y")},
		{Variable("x"), Fixed(store.RDFType), Fixed(ex("Person"))},
	}
	optimized := NewQueryPlanner(stats).OptimizePatterns(patterns)

	order := []store.Node{optimized[0].Predicate.Node, optimized[1].Predicate.Node, optimized[2].Predicate.Node}
	want := []store.Node{store.RDFType, knows, name}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, order[i], want[i])
		}
	}
}
