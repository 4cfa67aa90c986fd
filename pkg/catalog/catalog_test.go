package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolbeans/dcatgraph/pkg/blah"
	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/inference"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/query"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

const baseNS = "http://example.org/catalog#"

const catalogHeader = `@prefix dcat: <http://www.w3.org/ns/dcat#> .
@prefix dct: <http://purl.org/dc/terms/> .
`

type route struct {
	contentType string
	status      int
	body        string
}

// serve starts a server for routes keyed by path. Unknown paths are 404.
func serve(t *testing.T, routes map[string]route) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if rt.contentType != "" {
			w.Header().Set("Content-Type", rt.contentType)
		}
		if rt.status != 0 {
			w.WriteHeader(rt.status)
		}
		if r.Method == http.MethodGet {
			w.Write([]byte(rt.body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeCatalog writes a Turtle catalog whose distributions follow the
// header, with %[1]s standing for the server URL.
func writeCatalog(t *testing.T, srvURL, distributions string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.ttl")
	body := catalogHeader + strings.ReplaceAll(distributions, "%[1]s", srvURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newModel(t *testing.T, opts ...Option) *Model {
	t.Helper()
	m, err := NewModel(opts...)
	require.NoError(t, err)
	return m
}

func values(t *testing.T, rows []query.Row, column string) []string {
	t.Helper()
	var out []string
	for _, row := range rows {
		n, ok := row.Get(column)
		require.True(t, ok, "column %s unbound", column)
		out = append(out, n.Value)
	}
	return out
}

func TestLoad_SkipsUnresolvableDistribution(t *testing.T) {
	srv := serve(t, map[string]route{
		"/alice.ttl": {contentType: "text/turtle", body: `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .`},
		"/data.xyz":  {body: "opaque"},
	})
	path := writeCatalog(t, srv.URL, `
<#ds> a dcat:Dataset ;
  dcat:distribution <#dist1>, <#dist2> .
<#dist1> dcat:downloadURL <%[1]s/alice.ttl> ;
  dct:format "text/turtle" .
<#dist2> dcat:accessURL <%[1]s/data.xyz> .
`)

	m := newModel(t)
	report, err := m.Load(context.Background(), path, baseNS)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Distributions)
	assert.Equal(t, []string{srv.URL + "/alice.ttl"}, report.Loaded)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, srv.URL+"/data.xyz", report.Diagnostics[0].Locator)
	assert.Equal(t, StageResolve, report.Diagnostics[0].Stage)
	assert.Equal(t, errs.CodeFormatUnresolved, errs.CodeOf(report.Diagnostics[0].Err))

	assert.Equal(t, 1, m.Data().Len())
	assert.Equal(t, baseNS, m.Data().Base())
	assert.NotZero(t, m.Catalog().Len())
}

func TestLoad_BatchResilience(t *testing.T) {
	srv := serve(t, map[string]route{
		"/a.ttl":      {contentType: "text/turtle", body: `<http://example.org/a> <http://example.org/p> "a" .`},
		"/b.nt":       {body: "<http://example.org/b> <http://example.org/p> \"b\" .\n"},
		"/broken.ttl": {contentType: "text/turtle", body: `<http://example.org/c> <http://example.org/p>`},
		"/gone.ttl":   {status: http.StatusNotFound},
		"/e.xyz":      {body: "?"},
	})
	path := writeCatalog(t, srv.URL, `
<#ds> dcat:distribution <#d1>, <#d2>, <#d3>, <#d4>, <#d5>, <#d6> .
<#d1> dcat:downloadURL <%[1]s/a.ttl> .
<#d2> dcat:downloadURL <%[1]s/broken.ttl> .
<#d3> dcat:accessURL <%[1]s/b.nt> .
<#d4> dcat:downloadURL <%[1]s/gone.ttl> .
<#d5> dcat:downloadURL <%[1]s/e.xyz> .
<#d6> dct:title "no URL at all" .
`)

	m := newModel(t)
	report, err := m.Load(context.Background(), path, baseNS)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Distributions)
	assert.Equal(t, []string{srv.URL + "/a.ttl", srv.URL + "/b.nt"}, report.Loaded)
	require.Len(t, report.Diagnostics, 4)

	stages := make([]Stage, 0, len(report.Diagnostics))
	for _, d := range report.Diagnostics {
		stages = append(stages, d.Stage)
	}
	assert.Equal(t, []Stage{StageParse, StageFetch, StageResolve, StageResolve}, stages)
	assert.Equal(t, errs.CodeSourceStatus, errs.CodeOf(report.Diagnostics[1].Err))
	assert.Equal(t, 4, report.Skipped())
	assert.Equal(t, 2, m.Data().Len(), "a distribution that fails to parse adds nothing")
}

func TestLoad_Concurrent(t *testing.T) {
	routes := map[string]route{}
	var catalog strings.Builder
	catalog.WriteString("<#ds> dcat:distribution ")
	for i := range 8 {
		if i > 0 {
			catalog.WriteString(", ")
		}
		fmt.Fprintf(&catalog, "<#d%d>", i)
	}
	catalog.WriteString(" .\n")
	var want []string
	for i := range 8 {
		name := fmt.Sprintf("/part%d.nt", i)
		routes[name] = route{body: fmt.Sprintf("<http://example.org/s%d> <http://example.org/p> \"%d\" .\n", i, i)}
		fmt.Fprintf(&catalog, "<#d%d> dcat:downloadURL <%%[1]s%s> .\n", i, name)
		want = append(want, "%[1]s"+name)
	}
	srv := serve(t, routes)
	for i := range want {
		want[i] = strings.ReplaceAll(want[i], "%[1]s", srv.URL)
	}

	m := newModel(t, WithConcurrency(4))
	report, err := m.Load(context.Background(), writeCatalog(t, srv.URL, catalog.String()), baseNS)
	require.NoError(t, err)
	assert.Equal(t, want, report.Loaded, "loaded locators keep catalog order")
	assert.Equal(t, 8, m.Data().Len())
}

func TestLoad_SequentialKeepsFetchOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		fetched []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			return
		}
		mu.Lock()
		if n := len(fetched); n == 0 || fetched[n-1] != r.URL.Path {
			fetched = append(fetched, r.URL.Path)
		}
		mu.Unlock()
		w.Write([]byte("<http://example.org/s> <http://example.org/p> \"" + r.URL.Path + "\" .\n"))
	}))
	t.Cleanup(srv.Close)

	var catalog strings.Builder
	var want []string
	for i := range 6 {
		name := fmt.Sprintf("/part%d.nt", i)
		fmt.Fprintf(&catalog, "<#ds> dcat:distribution <#d%d> .\n<#d%d> dcat:downloadURL <%%[1]s%s> .\n", i, i, name)
		want = append(want, name)
	}

	m := newModel(t, WithConcurrency(1))
	report, err := m.Load(context.Background(), writeCatalog(t, srv.URL, catalog.String()), baseNS)
	require.NoError(t, err)
	require.Len(t, report.Loaded, 6)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, fetched, "one worker fetches in catalog order")
}

func TestLoad_DeclaredFormatFallback(t *testing.T) {
	srv := serve(t, map[string]route{
		"/dump": {body: "<http://example.org/s> <http://example.org/p> \"o\" .\n"},
	})
	path := writeCatalog(t, srv.URL, `
<#ds> dcat:distribution <#d1> .
<#d1> dcat:downloadURL <%[1]s/dump> ;
  dcat:mediaType "application/n-triples" .
`)

	report, err := newModel(t).Load(context.Background(), path, baseNS)
	require.NoError(t, err)
	assert.Empty(t, report.Loaded)

	m := newModel(t, WithDeclaredFormatFallback(true))
	report, err = m.Load(context.Background(), path, baseNS)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/dump"}, report.Loaded)
	assert.Equal(t, 1, m.Data().Len())
}

func TestLoad_CatalogFailureLeavesGraphs(t *testing.T) {
	srv := serve(t, map[string]route{
		"/a.nt": {body: "<http://example.org/a> <http://example.org/p> \"a\" .\n"},
	})
	m := newModel(t)
	_, err := m.Load(context.Background(), writeCatalog(t, srv.URL, "<#ds> dcat:distribution <#d1> .\n<#d1> dcat:downloadURL <%[1]s/a.nt> .\n"), baseNS)
	require.NoError(t, err)
	catalogLen, dataLen := m.Catalog().Len(), m.Data().Len()

	_, err = m.Load(context.Background(), filepath.Join(t.TempDir(), "missing.ttl"), baseNS)
	require.Error(t, err)
	assert.True(t, errs.IsLoadError(err))
	assert.Equal(t, catalogLen, m.Catalog().Len())
	assert.Equal(t, dataLen, m.Data().Len())

	_, err = m.Load(context.Background(), srv.URL+"/catalog.unknown", baseNS)
	assert.Equal(t, errs.CodeFormatUnresolved, errs.CodeOf(err))
}

func TestLoad_Metrics(t *testing.T) {
	srv := serve(t, map[string]route{
		"/a.nt":  {body: "<http://example.org/a> <http://example.org/p> \"a\" .\n"},
		"/b.xyz": {body: "?"},
	})
	reg := prometheus.NewRegistry()
	mt, err := metrics.New(reg)
	require.NoError(t, err)

	m := newModel(t, WithMetrics(mt))
	_, err = m.Load(context.Background(), writeCatalog(t, srv.URL, `
<#ds> dcat:distribution <#d1>, <#d2> .
<#d1> dcat:downloadURL <%[1]s/a.nt> .
<#d2> dcat:downloadURL <%[1]s/b.xyz> .
`), baseNS)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "dcatgraph_distributions_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				counts[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{metrics.StatusLoaded: 1, metrics.StatusSkipped: 1}, counts)
}

func TestDistributions(t *testing.T) {
	path := writeCatalog(t, "http://data.example.org", `
<#ds> dcat:distribution <#d1>, <#d2>, <#d3> .
<#d1> dcat:downloadURL <%[1]s/one.ttl> ;
  dcat:accessURL <%[1]s/landing> ;
  dct:format [ <http://www.w3.org/1999/02/22-rdf-syntax-ns#value> "text/turtle" ] .
<#d2> dcat:accessURL "%[1]s/two.nt" .
<#d3> dct:format "application/ld+json" .
`)
	m := newModel(t)
	_, err := m.Resolver().Read(context.Background(), m.Catalog(), path, baseNS)
	require.NoError(t, err)

	distributions, err := m.Distributions(context.Background())
	require.NoError(t, err)
	require.Len(t, distributions, 3)

	assert.Equal(t, store.IRI(baseNS+"d1"), distributions[0].Node)
	assert.Equal(t, "http://data.example.org/one.ttl", distributions[0].Locator, "download URL wins")
	assert.Equal(t, "text/turtle", distributions[0].Format)
	assert.Equal(t, "http://data.example.org/two.nt", distributions[1].Locator, "literal URLs are accepted")
	assert.Empty(t, distributions[2].Locator)
	assert.Equal(t, "application/ld+json", distributions[2].Format)
}

func TestQueries(t *testing.T) {
	srv := serve(t, map[string]route{
		"/people.nt": {body: "<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> \"Alice\" .\n"},
	})
	m := newModel(t)
	ctx := context.Background()

	_, err := m.PrepInferredQuery(ctx, "SELECT ?s WHERE { ?s ?p ?o }")
	assert.Equal(t, errs.CodeUnboundReasoner, errs.CodeOf(err), "no inferred view before a load")

	_, err = m.Load(ctx, writeCatalog(t, srv.URL, "<#ds> dcat:distribution <#d1> .\n<#d1> dcat:downloadURL <%[1]s/people.nt> .\n"), baseNS)
	require.NoError(t, err)

	prepared, err := m.PrepCatalogQuery("SELECT ?url WHERE { ?d dcat:downloadURL ?url }")
	require.NoError(t, err)
	rows, err := m.RunQuery(ctx, prepared)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/people.nt"}, values(t, rows, "url"))

	prepared, err = m.PrepDataQuery("SELECT ?n WHERE { ?s foaf:name ?n }")
	require.NoError(t, err)
	rows, err = m.RunQuery(ctx, prepared)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, values(t, rows, "n"))

	_, err = m.PrepDataQuery("SELECT ?n WHERE { ?s nope:name ?n }")
	assert.Equal(t, errs.CodeUnresolvedPrefix, errs.CodeOf(err))
}

func TestInferredQuery_Ontology(t *testing.T) {
	srv := serve(t, map[string]route{
		"/data.nt":    {body: "<http://example.org/individual1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.org/ClassX> .\n"},
		"/schema.ttl": {contentType: "text/turtle", body: `<http://example.org/ClassX> <http://www.w3.org/2002/07/owl#equivalentClass> <http://example.org/ClassY> .`},
	})
	m := newModel(t)
	ctx := context.Background()
	_, err := m.Load(ctx, writeCatalog(t, srv.URL, "<#ds> dcat:distribution <#d1> .\n<#d1> dcat:downloadURL <%[1]s/data.nt> .\n"), baseNS)
	require.NoError(t, err)
	require.NoError(t, m.LoadOntology(ctx, srv.URL+"/schema.ttl"))

	const body = "SELECT ?i WHERE { ?i a <http://example.org/ClassY> }"
	inferred, err := m.PrepInferredQuery(ctx, body)
	require.NoError(t, err)
	rows, err := m.RunQuery(ctx, inferred)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.org/individual1"}, values(t, rows, "i"))

	plain, err := m.PrepDataQuery(body)
	require.NoError(t, err)
	rows, err = m.RunQuery(ctx, plain)
	require.NoError(t, err)
	assert.Empty(t, rows)

	m.ClearOntologies()
	rows, err = m.RunQuery(ctx, inferred)
	require.NoError(t, err)
	assert.Empty(t, rows, "the view follows the schema graph")
}

func TestInferredQuery_ReasonerFailure(t *testing.T) {
	srv := serve(t, map[string]route{
		"/data.nt": {body: "<http://example.org/a> <http://example.org/p> \"a\" .\n"},
	})
	boom := errors.New("reasoner crashed")
	calls := 0
	reasoner := inference.ReasonerFunc(func(ctx context.Context, schema, base store.Graph) (*store.TripleStore, error) {
		calls++
		if calls > 1 {
			return nil, boom
		}
		return inference.NewRuleReasoner().Closure(ctx, schema, base)
	})

	m := newModel(t, WithReasoner(reasoner))
	ctx := context.Background()
	_, err := m.Load(ctx, writeCatalog(t, srv.URL, "<#ds> dcat:distribution <#d1> .\n<#d1> dcat:downloadURL <%[1]s/data.nt> .\n"), baseNS)
	require.NoError(t, err)

	prepared, err := m.PrepInferredQuery(ctx, "SELECT ?s WHERE { ?s ?p ?o }")
	require.NoError(t, err)

	require.NoError(t, m.Data().Add(store.NewTriple(store.IRI("http://example.org/b"), store.IRI("http://example.org/p"), store.Literal("b"))))
	rows, err := m.RunQuery(ctx, prepared)
	assert.Empty(t, rows)
	require.Error(t, err)
	assert.True(t, errs.IsQueryError(err))
	assert.ErrorIs(t, err, boom)
}

const friendsTurtle = `@prefix foaf: <http://xmlns.com/foaf/0.1/> .
@prefix ff: <http://example.org/friends#> .
ff:me a foaf:Person ; foaf:name "Me" ; foaf:knows ff:ross, ff:rachel .
ff:ross a foaf:Person ; foaf:name "Ross" .
ff:rachel a foaf:Person ; foaf:name "Rachel" .
`

const friendsBlah = `Joey: Chandler, Ross
`

// TestFriends merges a FOAF friend list with a Blah one. Each alignment
// assertion is added in turn and the friend names re-queried.
func TestFriends(t *testing.T) {
	srv := serve(t, map[string]route{
		"/friends.ttl":  {contentType: "text/turtle", body: friendsTurtle},
		"/friends.blah": {contentType: blah.MediaType, body: friendsBlah},
	})
	path := writeCatalog(t, srv.URL, `
<#friends> a dcat:Dataset ;
  dcat:distribution <#foaf>, <#blah> .
<#foaf> dcat:downloadURL <%[1]s/friends.ttl> .
<#blah> dcat:accessURL <%[1]s/friends.blah> .
`)

	m := newModel(t)
	ctx := context.Background()
	report, err := m.Load(ctx, path, "http://dcat.query.defaultns#")
	require.NoError(t, err)
	require.Len(t, report.Loaded, 2)

	friends := "http://example.org/friends#"
	blahNS := blah.Namespace
	require.NoError(t, m.SetPrefix("foaf_friends", &friends))
	require.NoError(t, m.SetPrefix("blah", &blahNS))

	prepared, err := m.PrepInferredQuery(ctx,
		"SELECT DISTINCT ?n WHERE { foaf_friends:me foaf:knows ?f . ?f foaf:name ?n . } ORDER BY ?n")
	require.NoError(t, err)
	names := func() []string {
		rows, err := m.RunQuery(ctx, prepared)
		require.NoError(t, err)
		return values(t, rows, "n")
	}

	assert.Equal(t, []string{"Rachel", "Ross"}, names())

	require.NoError(t, m.AddOntologyAssertion(store.FOAFPerson, store.OWLEquivalentClass, blah.BlahPerson))
	require.NoError(t, m.AddOntologyAssertion(store.FOAFName, store.OWLEquivalentProperty, blah.HasFirstName))
	assert.Equal(t, []string{"Rachel", "Ross"}, names())

	require.NoError(t, m.AddOntologyAssertion(store.FOAFKnows, store.OWLEquivalentProperty, blah.HasFriend))
	assert.Equal(t, []string{"Rachel", "Ross"}, names(), "me has no Blah friends yet")

	require.NoError(t, m.AddOntologyAssertion(store.IRI(friends+"me"), store.OWLSameAs, blah.Person("Joey")))
	assert.Equal(t, []string{"Chandler", "Rachel", "Ross"}, names(), "Joey's friends are merged in once")
}
