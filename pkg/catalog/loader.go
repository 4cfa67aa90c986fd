package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/format"
	"github.com/coolbeans/dcatgraph/pkg/metrics"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// DistributionQuery finds every distribution with its declared format and
// its download or access URL. It declares its own prefixes so that it does
// not depend on the registry.
const DistributionQuery = `PREFIX dcat: <http://www.w3.org/ns/dcat#>
PREFIX dct: <http://purl.org/dc/terms/>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
SELECT DISTINCT ?dist ?url ?format WHERE {
  ?subj dcat:distribution ?dist .
  OPTIONAL { ?dist dct:format ?f . ?f rdf:value ?format . }
  OPTIONAL { ?dist dct:format ?format . FILTER(isLiteral(?format)) }
  OPTIONAL { ?dist dcat:mediaType ?format . }
  OPTIONAL { ?dist dcat:downloadURL ?url . }
  OPTIONAL { ?dist dcat:accessURL ?url . }
} ORDER BY ?dist ?url`

var errNoLocator = errors.New("distribution has neither a download nor an access URL")

// Load reads the catalog at catalogURI into the catalog graph, then loads
// every distribution it lists into the dataset graph, which is emptied
// first. Relative identifiers in the catalog and in every distribution are
// resolved against baseNS.
//
// A catalog that cannot be read fails the whole call with a
// *errs.LoadError and leaves every graph as it was. A distribution that
// cannot be resolved, fetched or parsed is recorded in the report's
// diagnostics and never stops the others.
func (m *Model) Load(ctx context.Context, catalogURI, baseNS string) (*Report, error) {
	start := time.Now()
	report := &Report{Catalog: catalogURI}

	catalog := store.NewNamedGraph(store.GraphCatalog, baseNS)
	if _, err := m.resolver.Read(ctx, catalog, catalogURI, baseNS); err != nil {
		return nil, err
	}
	m.catalog.RemoveAll()
	m.catalog.SetBase(baseNS)
	m.catalog.MergeFrom(catalog)

	distributions, err := m.Distributions(ctx)
	if err != nil {
		return nil, err
	}
	report.Distributions = len(distributions)

	m.data.RemoveAll()
	m.data.SetBase(baseNS)
	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()

	outcomes := m.loadDistributions(ctx, distributions, baseNS)
	for _, o := range outcomes {
		if o.diagnostic != nil {
			report.Diagnostics = append(report.Diagnostics, *o.diagnostic)
			m.metrics.RecordDistribution(metrics.StatusSkipped)
			m.logger.Warn("skipping distribution",
				"locator", o.diagnostic.Locator,
				"stage", o.diagnostic.Stage,
				"error", o.diagnostic.Err)
			continue
		}
		report.Loaded = append(report.Loaded, o.locator)
		m.metrics.RecordDistribution(metrics.StatusLoaded)
	}

	report.Elapsed = time.Since(start)
	m.metrics.RecordLoad(report.Elapsed)
	m.logger.Info("catalog loaded",
		"catalog", catalogURI,
		"distributions", report.Distributions,
		"loaded", len(report.Loaded),
		"skipped", report.Skipped(),
		"triples", m.data.Len(),
		"elapsed", report.Elapsed)
	return report, nil
}

// Distributions runs DistributionQuery against the catalog graph.
func (m *Model) Distributions(ctx context.Context) ([]Distribution, error) {
	prepared, err := m.executor.Prepare(DistributionQuery, m.catalog)
	if err != nil {
		return nil, err
	}
	rows, err := m.RunQuery(ctx, prepared)
	if err != nil {
		return nil, err
	}

	distributions := make([]Distribution, 0, len(rows))
	for _, row := range rows {
		d := Distribution{Node: row["dist"]}
		if url, ok := row.Get("url"); ok {
			d.Locator = url.Value
		}
		if f, ok := row.Get("format"); ok {
			d.Format = f.Value
		}
		distributions = append(distributions, d)
	}
	return distributions, nil
}

// outcome is the result of loading one distribution.
type outcome struct {
	locator    string
	triples    []store.Triple
	diagnostic *Diagnostic
}

// loadDistributions fetches and parses each distribution, with up to
// m.concurrency at once, and merges the results into the dataset graph from
// a single writer. Outcomes are returned in distribution order.
func (m *Model) loadDistributions(ctx context.Context, distributions []Distribution, baseNS string) []outcome {
	outcomes := make([]outcome, len(distributions))

	type indexed struct {
		index int
		outcome
	}
	results := make(chan indexed)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for r := range results {
			if r.diagnostic == nil {
				if err := m.data.BulkAdd(r.triples); err != nil {
					r.diagnostic = &Diagnostic{
						Distribution: r.locator,
						Locator:      r.locator,
						Stage:        StageParse,
						Err:          err,
					}
				}
			}
			r.triples = nil
			outcomes[r.index] = r.outcome
		}
	}()

	if m.concurrency == 1 {
		for i, d := range distributions {
			results <- indexed{index: i, outcome: m.loadDistribution(ctx, d, baseNS)}
		}
		close(results)
		<-writerDone
		return outcomes
	}

	// Slots are taken in catalog order, so fetches start in that order.
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, m.concurrency)
	for i, d := range distributions {
		semaphore <- struct{}{}
		wg.Add(1)
		go func(i int, d Distribution) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results <- indexed{index: i, outcome: m.loadDistribution(ctx, d, baseNS)}
		}(i, d)
	}

	wg.Wait()
	close(results)
	<-writerDone
	return outcomes
}

// loadDistribution resolves, fetches and parses one distribution without
// touching any graph.
func (m *Model) loadDistribution(ctx context.Context, d Distribution, baseNS string) outcome {
	fail := func(stage Stage, err error) outcome {
		return outcome{
			locator: d.Locator,
			diagnostic: &Diagnostic{
				Distribution: d.Node.String(),
				Locator:      d.Locator,
				Stage:        stage,
				Err:          err,
			},
		}
	}

	if d.Locator == "" {
		return fail(StageResolve, errNoLocator)
	}

	f, ok := m.resolveDistribution(ctx, d)
	if !ok {
		return fail(StageResolve,
			errs.NewLoadError(errs.CodeFormatUnresolved, d.Locator, nil, "no installed format matches"))
	}

	triples, err := store.ReadAll(ctx, m.resolver.Source(d.Locator), baseNS, f.Parser())
	if err != nil {
		return fail(stageOf(err), err)
	}
	m.logger.Debug("distribution read", "locator", d.Locator, "format", f.Name, "triples", len(triples))
	return outcome{locator: d.Locator, triples: triples}
}

// resolveDistribution resolves the locator's format, falling back to the
// declared format when enabled.
func (m *Model) resolveDistribution(ctx context.Context, d Distribution) (*format.Format, bool) {
	if f, ok := m.resolver.Resolve(ctx, d.Locator); ok {
		return f, true
	}
	if !m.declaredFallback || d.Format == "" {
		return nil, false
	}

	registry := m.resolver.Registry()
	if f, ok := registry.ByMediaType(d.Format); ok {
		m.logger.Debug("resolved format", "locator", d.Locator, "format", f.Name, "via", "declared")
		return f, true
	}
	if f, ok := registry.Find(d.Format); ok {
		m.logger.Debug("resolved format", "locator", d.Locator, "format", f.Name, "via", "declared")
		return f, true
	}
	return nil, false
}
