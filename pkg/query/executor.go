package query

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// DefaultTimeout bounds a query execution unless WithTimeout overrides it.
const DefaultTimeout = 30 * time.Second

// Preambler supplies prefix declarations prepended to every query body.
// *prefix.Registry implements it.
type Preambler interface {
	Preamble() string
}

// Executor prepares and executes queries against graphs.
type Executor struct {
	enablePlanning bool
	timeout        time.Duration
	preamble       Preambler
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// ExecutorOption configures an executor.
type ExecutorOption func(*Executor)

// WithPlanning enables or disables selectivity-based pattern reordering.
func WithPlanning(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.enablePlanning = enabled
	}
}

// WithTimeout sets the execution deadline. Zero disables it.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithPreamble prepends the preambler's prefix declarations to every query
// body passed to Prepare.
func WithPreamble(p Preambler) ExecutorOption {
	return func(e *Executor) {
		e.preamble = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics records query outcomes and durations.
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates a new query executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		enablePlanning: true,
		timeout:        DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepared is a parsed query bound to a graph. It can be executed any number
// of times; each execution observes the graph's content at that moment.
type Prepared struct {
	Query     *Query
	ParseTime time.Duration

	graph    store.Graph
	label    string
	executor *Executor
}

// Graph returns the graph the query is bound to.
func (p *Prepared) Graph() store.Graph { return p.graph }

// Label returns the graph label used in logs and metrics.
func (p *Prepared) Label() string { return p.label }

// Prepare prepends the configured preamble to body, parses the result and
// binds it to graph. Malformed queries fail here with a *errs.QueryError.
func (e *Executor) Prepare(body string, graph store.Graph) (*Prepared, error) {
	label := graphLabel(graph)
	text := body
	if e.preamble != nil {
		text = e.preamble.Preamble() + body
	}

	if graph == nil {
		e.metrics.RecordQuery(label, 0, false)
		return nil, errs.NewQueryError(errs.CodeEvaluation, text, nil, "no graph to query")
	}

	start := time.Now()
	q, err := ParseQuery(text)
	if err != nil {
		e.metrics.RecordQuery(label, time.Since(start), false)
		return nil, err
	}
	return &Prepared{
		Query:     q,
		ParseTime: time.Since(start),
		graph:     graph,
		label:     label,
		executor:  e,
	}, nil
}

// graphLabel names a graph by its Name method when it has one.
func graphLabel(g store.Graph) string {
	if named, ok := g.(interface{ Name() string }); ok && named.Name() != "" {
		return named.Name()
	}
	return "graph"
}

// Execute starts evaluating the query and returns a cursor over its
// solutions. Nothing is computed until Next is called.
func (p *Prepared) Execute(ctx context.Context) (*Rows, error) {
	e := p.executor
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		e.metrics.RecordQuery(p.label, 0, false)
		return nil, errs.NewQueryError(errs.CodeEvaluation, p.Query.Text, err, "execution not started: %v", err)
	}
	if err := refresh(ctx, p.graph); err != nil {
		cancel()
		e.metrics.RecordQuery(p.label, 0, false)
		if qe, ok := errs.AsQueryError(err); ok {
			if qe.Query == "" {
				qe.Query = p.Query.Text
			}
			return nil, qe
		}
		return nil, errs.NewQueryError(errs.CodeEvaluation, p.Query.Text, err, "refresh %s", p.label)
	}

	planStart := time.Now()
	where := p.Query.Where
	if e.enablePlanning && len(where) > 1 {
		if stats, ok := p.graph.(interface{ Stats() store.IndexStats }); ok {
			where = NewQueryPlanner(stats.Stats()).OptimizePatterns(where)
		}
	}
	x := &execution{
		ctx:      ctx,
		query:    p.Query,
		graph:    p.graph,
		where:    where,
		columns:  p.Query.Projection(),
		planTime: time.Since(planStart),
	}

	x.rows = newRows(x.columns, x.solutions, cancel, func(rows *Rows) {
		success := rows.Err() == nil
		e.metrics.RecordQuery(p.label, rows.Elapsed(), success)
		e.logger.Debug("query finished",
			"graph", p.label,
			"rows", rows.Count(),
			"elapsed", rows.Elapsed(),
			"error", rows.Err())
	})
	x.rows.planTime = x.planTime
	return x.rows, nil
}

// refresh brings a derived graph up to date under ctx before it is read.
func refresh(ctx context.Context, g store.Graph) error {
	if r, ok := g.(interface{ Refresh(context.Context) error }); ok {
		return r.Refresh(ctx)
	}
	return nil
}

// graphErr reports a failure a derived graph hit while serving reads.
func graphErr(g store.Graph) error {
	if f, ok := g.(interface{ Err() error }); ok {
		return f.Err()
	}
	return nil
}

// Run executes the query and collects every solution.
func (p *Prepared) Run(ctx context.Context) (*QueryResult, error) {
	start := time.Now()
	rows, err := p.Execute(ctx)
	if err != nil {
		return nil, err
	}
	bindings, err := rows.All()
	if err != nil {
		return nil, err
	}

	total := time.Since(start)
	return &QueryResult{
		Variables: rows.Columns(),
		Bindings:  bindings,
		Count:     len(bindings),
		Metrics: QueryMetrics{
			ParseTime:     p.ParseTime,
			PlanTime:      rows.planTime,
			ExecuteTime:   total - rows.planTime,
			TotalTime:     total + p.ParseTime,
			PatternsCount: len(p.Query.Where),
			ResultCount:   len(bindings),
		},
	}, nil
}

// ExecuteString prepares body against graph and collects every solution.
func (e *Executor) ExecuteString(ctx context.Context, body string, graph store.Graph) (*QueryResult, error) {
	prepared, err := e.Prepare(body, graph)
	if err != nil {
		return nil, err
	}
	return prepared.Run(ctx)
}

// execution is the state of one Execute call.
type execution struct {
	ctx      context.Context
	query    *Query
	graph    store.Graph
	where    []TriplePattern
	columns  []string
	planTime time.Duration
	rows     *Rows
}

// solutions yields projected rows: required patterns are joined, OPTIONAL
// groups are left-joined, filters applied, then ORDER BY, DISTINCT, OFFSET
// and LIMIT.
func (x *execution) solutions(yield func(Row) bool) {
	q := x.query
	if q.Limit == 0 {
		return
	}

	seen := make(map[string]bool)
	skipped := 0
	emitted := 0
	emit := func(full Row) bool {
		row := project(full, x.columns)
		if q.Distinct {
			key := rowKey(row, x.columns)
			if seen[key] {
				return true
			}
			seen[key] = true
		}
		if skipped < q.Offset {
			skipped++
			return true
		}
		if !yield(row) {
			return false
		}
		emitted++
		return q.Limit < 0 || emitted < q.Limit
	}

	if len(q.OrderBy) == 0 {
		x.evaluate(emit)
		return
	}

	var all []Row
	if !x.evaluate(func(full Row) bool {
		all = append(all, full)
		return true
	}) {
		return
	}
	slices.SortStableFunc(all, func(a, b Row) int {
		for _, ob := range q.OrderBy {
			c := orderCompare(a[ob.Variable], b[ob.Variable])
			if ob.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	for _, full := range all {
		if !emit(full) {
			return
		}
	}
}

// evaluate produces the full, filtered bindings of the WHERE group. It
// returns false if iteration was stopped by sink or by the context.
func (x *execution) evaluate(sink func(Row) bool) bool {
	return x.match(x.where, 0, Row{}, func(b Row) bool {
		return x.leftJoin(x.query.Optional, 0, b, func(full Row) bool {
			for _, f := range x.query.Filters {
				if !f.accepts(full) {
					return true
				}
			}
			return sink(full)
		})
	})
}

// match extends b with every solution of patterns[i:], nested-loop style.
func (x *execution) match(patterns []TriplePattern, i int, b Row, yield func(Row) bool) bool {
	if i == len(patterns) {
		return yield(b)
	}
	if err := x.ctx.Err(); err != nil {
		x.rows.fail(x.query.Text, err)
		return false
	}

	pattern := patterns[i]
	subject := resolveValue(pattern.Subject, b)
	predicate := resolveValue(pattern.Predicate, b)
	object := resolveValue(pattern.Object, b)

	matches := x.graph.Find(subject, predicate, object)
	if err := graphErr(x.graph); err != nil {
		x.rows.fail(x.query.Text, err)
		return false
	}
	for _, t := range matches {
		extended, ok := bindPattern(pattern, t, b)
		if !ok {
			continue
		}
		if !x.match(patterns, i+1, extended, yield) {
			return false
		}
	}
	return true
}

// leftJoin applies OPTIONAL groups[gi:] to b. A group with no compatible
// extension leaves b unchanged, so its variables stay unbound.
func (x *execution) leftJoin(groups []OptionalGroup, gi int, b Row, yield func(Row) bool) bool {
	if gi == len(groups) {
		return yield(b)
	}

	group := groups[gi]
	matched := false
	ok := x.match(group.Patterns, 0, b, func(extended Row) bool {
		for _, f := range group.Filters {
			if !f.accepts(extended) {
				return true
			}
		}
		matched = true
		return x.leftJoin(groups, gi+1, extended, yield)
	})
	if !ok {
		return false
	}
	if !matched {
		return x.leftJoin(groups, gi+1, b, yield)
	}
	return true
}

// resolveValue resolves a pattern term using the current bindings. An
// unbound variable resolves to the zero node, a wildcard.
func resolveValue(term Term, b Row) store.Node {
	if term.IsVariable() {
		return b[term.Var]
	}
	return term.Node
}

// bindPattern binds the pattern's variables to the matched triple. It
// reports false when a variable repeated within the pattern would need two
// different values.
func bindPattern(pattern TriplePattern, t store.Triple, b Row) (Row, bool) {
	extended := maps.Clone(b)
	for _, pair := range [3]struct {
		term  Term
		value store.Node
	}{
		{pattern.Subject, t.Subject},
		{pattern.Predicate, t.Predicate},
		{pattern.Object, t.Object},
	} {
		if !pair.term.IsVariable() {
			continue
		}
		if existing, ok := extended[pair.term.Var]; ok {
			if existing != pair.value {
				return nil, false
			}
			continue
		}
		extended[pair.term.Var] = pair.value
	}
	return extended, true
}

func project(full Row, columns []string) Row {
	row := make(Row, len(columns))
	for _, c := range columns {
		row[c] = full[c]
	}
	return row
}

func rowKey(row Row, columns []string) string {
	var sb strings.Builder
	for _, c := range columns {
		sb.WriteString(row[c].String())
		sb.WriteByte(0)
	}
	return sb.String()
}

// orderCompare orders nodes for ORDER BY: unbound first, then blank nodes,
// IRIs and literals. Numeric literals compare by value.
func orderCompare(a, b store.Node) int {
	if av, ok := numericValue(a); ok && a.IsLiteral() {
		if bv, ok := numericValue(b); ok && b.IsLiteral() {
			if c := compareFloats(av, bv); c != 0 {
				return c
			}
		}
	}
	rank := func(n store.Node) int {
		switch n.Kind {
		case store.KindBlank:
			return 1
		case store.KindIRI:
			return 2
		case store.KindLiteral:
			return 3
		default:
			return 0
		}
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra - rb
	}
	return store.Compare(a, b)
}
