// Package metrics holds the Prometheus collectors for catalog loads, format
// probes, queries and inference rebuilds.
//
// A nil *Metrics is valid: every Record method is a no-op on it, so
// components can take one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dcatgraph"

// Distribution statuses.
const (
	StatusLoaded  = "loaded"
	StatusSkipped = "skipped"
)

// Probe results.
const (
	ProbeHit   = "hit"
	ProbeMiss  = "miss"
	ProbeError = "error"
)

// Metrics holds Prometheus metrics for a catalog model.
type Metrics struct {
	distributionsTotal *prometheus.CounterVec
	loadDuration       prometheus.Histogram

	probeTotal *prometheus.CounterVec

	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	inferenceRebuilds prometheus.Counter
	inferredTriples   prometheus.Gauge
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		distributionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "distributions_total",
				Help:      "Catalog distributions processed, by outcome",
			},
			[]string{"status"},
		),
		loadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Duration of whole catalog loads",
				Buckets:   []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
		probeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_total",
				Help:      "Content-type probes, by cache result",
			},
			[]string{"result"},
		),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Executed queries, by target graph and status",
			},
			[]string{"graph", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of query execution including row draining",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"graph"},
		),
		inferenceRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inference_rebuilds_total",
				Help:      "Recomputations of the inferred view",
			},
		),
		inferredTriples: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inferred_triples",
				Help:      "Triples in the most recently computed inferred view",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.distributionsTotal, m.loadDuration, m.probeTotal,
		m.queriesTotal, m.queryDuration, m.inferenceRebuilds, m.inferredTriples,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordDistribution counts one processed distribution.
func (m *Metrics) RecordDistribution(status string) {
	if m == nil {
		return
	}
	m.distributionsTotal.WithLabelValues(status).Inc()
}

// RecordLoad records the duration of a whole catalog load.
func (m *Metrics) RecordLoad(duration time.Duration) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(duration.Seconds())
}

// RecordProbe counts one content-type probe.
func (m *Metrics) RecordProbe(result string) {
	if m == nil {
		return
	}
	m.probeTotal.WithLabelValues(result).Inc()
}

// RecordQuery records an executed query.
func (m *Metrics) RecordQuery(graph string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.queriesTotal.WithLabelValues(graph, status).Inc()
	m.queryDuration.WithLabelValues(graph).Observe(duration.Seconds())
}

// RecordInference records a recomputation of the inferred view.
func (m *Metrics) RecordInference(triples int) {
	if m == nil {
		return
	}
	m.inferenceRebuilds.Inc()
	m.inferredTriples.Set(float64(triples))
}
