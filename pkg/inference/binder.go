package inference

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// State is the binder's state.
type State int

const (
	Unbound State = iota
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// Option configures a Binder.
type Option func(*Binder)

// WithLogger sets the logger used for rebuild messages.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binder) { b.logger = logger }
}

// WithMetrics records view rebuilds.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Binder) { b.metrics = m }
}

// Binder attaches a reasoner to a schema graph and a base graph. While
// bound it serves a View of their closure.
type Binder struct {
	mu       sync.Mutex
	reasoner Reasoner
	view     *View
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewBinder creates an unbound binder. A nil reasoner selects the
// RuleReasoner.
func NewBinder(reasoner Reasoner, opts ...Option) *Binder {
	if reasoner == nil {
		reasoner = NewRuleReasoner()
	}
	b := &Binder{reasoner: reasoner, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind attaches the reasoner to schema and base and returns the view over
// their closure. Any earlier view is discarded. The closure is computed on
// first access.
func (b *Binder) Bind(schema, base store.Graph) *View {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.view = &View{
		reasoner: b.reasoner,
		schema:   schema,
		base:     base,
		logger:   b.logger,
		metrics:  b.metrics,
	}
	b.logger.Debug("reasoner bound")
	return b.view
}

// Unbind discards the view and returns to the Unbound state.
func (b *Binder) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.view != nil {
		b.view.detach()
	}
	b.view = nil
}

// State reports whether a reasoner is bound.
func (b *Binder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.view == nil {
		return Unbound
	}
	return Bound
}

// View returns the current view. It fails with a *errs.QueryError of code
// unbound_reasoner while the binder is Unbound.
func (b *Binder) View() (*View, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.view == nil {
		return nil, errs.NewQueryError(errs.CodeUnboundReasoner, "", nil, "no reasoner is bound")
	}
	return b.view, nil
}

// View is the read-only entailment closure of a base graph under a schema.
// Any change to either input invalidates the cached closure; the next read
// recomputes it, so a stale closure is never observed.
type View struct {
	mu       sync.Mutex
	reasoner Reasoner
	schema   store.Graph
	base     store.Graph
	logger   *slog.Logger
	metrics  *metrics.Metrics

	closure   *store.TripleStore
	schemaGen uint64
	baseGen   uint64
	rebuilds  int
	lastErr   error
	detached  bool
}

// Refresh recomputes the closure if an input changed since it was built.
func (v *View) Refresh(ctx context.Context) error {
	_, err := v.current(ctx)
	return err
}

// current returns an up-to-date closure, rebuilding it if needed.
func (v *View) current(ctx context.Context) (*store.TripleStore, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.detached {
		return nil, errs.NewQueryError(errs.CodeUnboundReasoner, "", nil, "view was unbound")
	}

	schemaGen, baseGen := generation(v.schema), generation(v.base)
	if v.closure != nil && schemaGen == v.schemaGen && baseGen == v.baseGen {
		return v.closure, nil
	}

	start := time.Now()
	closure, err := v.reasoner.Closure(ctx, v.schema, v.base)
	if err != nil {
		v.lastErr = err
		return nil, errs.NewQueryError(errs.CodeEvaluation, "", err, "compute inferred view")
	}
	v.closure = closure
	v.schemaGen, v.baseGen = schemaGen, baseGen
	v.rebuilds++
	v.lastErr = nil

	v.metrics.RecordInference(closure.Len())
	v.logger.Debug("inferred view rebuilt",
		"triples", closure.Len(),
		"elapsed", time.Since(start))
	return closure, nil
}

func (v *View) detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detached = true
	v.closure = nil
}

// snapshot is current for the Graph methods, which cannot return errors. A
// failed rebuild is logged and reads see an empty graph; Err reports it, and
// the query executor fails the running query on it.
func (v *View) snapshot() store.Graph {
	closure, err := v.current(context.Background())
	if err != nil {
		v.logger.Error("inferred view unavailable", "error", err)
		return store.NewNamedGraph(ViewName, "")
	}
	return closure
}

func generation(g store.Graph) uint64 {
	if g == nil {
		return 0
	}
	return g.Generation()
}

// Name returns ViewName.
func (v *View) Name() string { return ViewName }

func (v *View) Find(subject, predicate, object store.Node) []store.Triple {
	return v.snapshot().Find(subject, predicate, object)
}

func (v *View) Contains(t store.Triple) bool {
	return v.snapshot().Contains(t)
}

func (v *View) Len() int {
	return v.snapshot().Len()
}

// Generation changes whenever the schema or the base changes.
func (v *View) Generation() uint64 {
	return generation(v.schema) + generation(v.base)
}

// Stats returns index statistics of the last built closure for query
// planning. It never triggers a rebuild; call Refresh first.
func (v *View) Stats() store.IndexStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closure == nil {
		return store.IndexStats{}
	}
	return v.closure.Stats()
}

// Rebuilds returns how many times the closure has been computed.
func (v *View) Rebuilds() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rebuilds
}

// Err returns the error of the last failed rebuild, if the closure has not
// been rebuilt successfully since.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}
