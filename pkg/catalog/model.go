// Package catalog loads DCAT catalogs and the datasets they describe, and
// answers queries over the catalog, the data and its inferred closure.
//
// A Model owns four named graphs:
//
//   - catalog: the DCAT document itself
//   - schema: ontologies and assertions added by the caller
//   - alignment: assertions from alignment files
//   - dataset: the triples of every distribution that could be loaded
//
// Queries target the catalog, the dataset, or the inferred view of the
// dataset under schema and alignment.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coolbeans/dcatgraph/pkg/blah"
	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/format"
	"github.com/coolbeans/dcatgraph/pkg/inference"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/prefix"
	"github.com/coolbeans/dcatgraph/pkg/query"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Model is a catalog with its dataset, schema and query engine. Loads and
// schema changes must not run concurrently with each other; queries may run
// concurrently with each other.
type Model struct {
	graphs    *store.Dataset
	catalog   *store.TripleStore
	schema    *store.TripleStore
	alignment *store.TripleStore
	data      *store.TripleStore

	prefixes *prefix.Registry
	resolver *format.Resolver
	executor *query.Executor
	binder   *inference.Binder
	reasoner inference.Reasoner

	logger  *slog.Logger
	metrics *metrics.Metrics

	concurrency      int
	declaredFallback bool
	queryOptions     []query.ExecutorOption

	mu     sync.Mutex
	loaded bool
	view   *inference.View
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used by the model and the components it
// creates.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// WithMetrics records loads, queries and inference rebuilds.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Model) { m.metrics = mt }
}

// WithResolver replaces the default resolver, whose registry holds the
// built-in formats and Blah.
func WithResolver(r *format.Resolver) Option {
	return func(m *Model) { m.resolver = r }
}

// WithPrefixes replaces the default prefix registry.
func WithPrefixes(reg *prefix.Registry) Option {
	return func(m *Model) { m.prefixes = reg }
}

// WithReasoner replaces the rule reasoner.
func WithReasoner(r inference.Reasoner) Option {
	return func(m *Model) { m.reasoner = r }
}

// WithConcurrency sets how many distributions are fetched and parsed at
// once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(m *Model) {
		if n < 1 {
			n = 1
		}
		m.concurrency = n
	}
}

// WithDeclaredFormatFallback lets a distribution's declared format pick the
// parser when neither its content type nor its suffix resolves.
func WithDeclaredFormatFallback(enabled bool) Option {
	return func(m *Model) { m.declaredFallback = enabled }
}

// WithQueryOptions passes extra options to the query executor.
func WithQueryOptions(opts ...query.ExecutorOption) Option {
	return func(m *Model) { m.queryOptions = append(m.queryOptions, opts...) }
}

// NewModel creates a model with empty graphs.
func NewModel(opts ...Option) (*Model, error) {
	m := &Model{
		graphs:      store.NewDataset(),
		logger:      slog.Default(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(m)
	}

	for name, target := range map[string]**store.TripleStore{
		store.GraphCatalog:   &m.catalog,
		store.GraphSchema:    &m.schema,
		store.GraphAlignment: &m.alignment,
		store.GraphDataset:   &m.data,
	} {
		g, err := m.graphs.CreateGraph(name, "")
		if err != nil {
			return nil, err
		}
		*target = g
	}

	if m.prefixes == nil {
		m.prefixes = prefix.NewRegistry()
	}
	if m.resolver == nil {
		reg := format.NewRegistry()
		if err := format.InstallDefaults(reg); err != nil {
			return nil, err
		}
		if err := blah.Install(reg); err != nil {
			return nil, err
		}
		m.resolver = format.NewResolver(reg,
			format.WithLogger(m.logger),
			format.WithMetrics(m.metrics))
	}

	executorOptions := []query.ExecutorOption{
		query.WithPreamble(m.prefixes),
		query.WithLogger(m.logger),
		query.WithMetrics(m.metrics),
	}
	m.executor = query.NewExecutor(append(executorOptions, m.queryOptions...)...)
	m.binder = inference.NewBinder(m.reasoner,
		inference.WithLogger(m.logger),
		inference.WithMetrics(m.metrics))
	return m, nil
}

// Graphs returns the model's named graphs.
func (m *Model) Graphs() *store.Dataset { return m.graphs }

// Catalog returns the catalog graph.
func (m *Model) Catalog() *store.TripleStore { return m.catalog }

// Schema returns the schema graph.
func (m *Model) Schema() *store.TripleStore { return m.schema }

// Alignment returns the alignment graph.
func (m *Model) Alignment() *store.TripleStore { return m.alignment }

// Data returns the dataset graph.
func (m *Model) Data() *store.TripleStore { return m.data }

// Prefixes returns the prefix registry.
func (m *Model) Prefixes() *prefix.Registry { return m.prefixes }

// Resolver returns the format resolver.
func (m *Model) Resolver() *format.Resolver { return m.resolver }

// Binder returns the inference binder.
func (m *Model) Binder() *inference.Binder { return m.binder }

// Executor returns the query executor.
func (m *Model) Executor() *query.Executor { return m.executor }

// SetPrefix binds prefix to namespace for every later query. A nil
// namespace removes the prefix.
func (m *Model) SetPrefix(p string, namespace *string) error {
	return m.prefixes.SetPrefix(p, namespace)
}

// LoadOntology reads an ontology into the schema graph. Any failure is
// returned.
func (m *Model) LoadOntology(ctx context.Context, locator string) error {
	f, err := m.resolver.Read(ctx, m.schema, locator, "")
	if err != nil {
		return err
	}
	m.logger.Info("ontology loaded", "locator", locator, "format", f.Name, "triples", m.schema.Len())
	return nil
}

// ClearOntologies empties the schema graph.
func (m *Model) ClearOntologies() {
	m.schema.RemoveAll()
}

// AddOntologyAssertion adds one triple to the schema graph.
func (m *Model) AddOntologyAssertion(s, p, o store.Node) error {
	return m.schema.Add(store.NewTriple(s, p, o))
}

// PrepCatalogQuery prepares body against the catalog graph.
func (m *Model) PrepCatalogQuery(body string) (*query.Prepared, error) {
	return m.executor.Prepare(body, m.catalog)
}

// PrepDataQuery prepares body against the dataset graph.
func (m *Model) PrepDataQuery(body string) (*query.Prepared, error) {
	return m.executor.Prepare(body, m.data)
}

// PrepInferredQuery prepares body against the inferred view of the dataset
// under the schema and alignment graphs, binding the reasoner on first use.
// Before the first Load it fails with a *errs.QueryError of code
// unbound_reasoner.
func (m *Model) PrepInferredQuery(ctx context.Context, body string) (*query.Prepared, error) {
	view, err := m.inferredView()
	if err != nil {
		return nil, err
	}
	prepared, err := m.executor.Prepare(body, view)
	if err != nil {
		return nil, err
	}
	if err := view.Refresh(ctx); err != nil {
		return nil, err
	}
	return prepared, nil
}

func (m *Model) inferredView() (*inference.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return nil, errs.NewQueryError(errs.CodeUnboundReasoner, "", nil, "no dataset has been loaded")
	}
	if m.view == nil || m.binder.State() == inference.Unbound {
		m.view = m.binder.Bind(store.Union(m.schema, m.alignment), m.data)
	}
	return m.view, nil
}

// RunQuery executes prepared and collects its rows. The cursor is always
// closed.
func (m *Model) RunQuery(ctx context.Context, prepared *query.Prepared) ([]query.Row, error) {
	rows, err := prepared.Execute(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.All()
}
