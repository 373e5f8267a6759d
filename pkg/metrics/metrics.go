// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ingest"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry      *prometheus.Registry
	batches       *prometheus.CounterVec
	rows          *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	candidates    *prometheus.CounterVec
	lockConflicts prometheus.Counter
	staleBatches  prometheus.Gauge
}

// New registers the ingestion collectors plus the Go and process collectors
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Finalized upload batches by kind and status.",
		}, []string{"kind", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows and confirmed candidates by kind and outcome.",
		}, []string{"kind", "outcome"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time from batch open to finalization.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"kind"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_candidates_total",
			Help:      "Candidates surfaced by PDF previews after deduplication.",
		}, []string{"pattern"}),
		lockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_lock_conflicts_total",
			Help:      "Uploads rejected because another upload held the owner lock.",
		}),
		staleBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_batches",
			Help:      "Batches still processing past the stale threshold at the last check.",
		}),
	}

	reg.MustRegister(
		m.batches, m.rows, m.batchDuration, m.candidates, m.lockConflicts, m.staleBatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchFinished(kind, status string, processed, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(kind, status).Inc()
	m.rows.WithLabelValues(kind, "processed").Add(float64(processed))
	m.rows.WithLabelValues(kind, "failed").Add(float64(failed))
	m.batchDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) CandidateExtracted(pattern string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(pattern).Inc()
}

func (m *Metrics) LockConflict() {
	if m == nil {
		return
	}
	m.lockConflicts.Inc()
}

func (m *Metrics) SetStaleBatches(n int) {
	if m == nil {
		return
	}
	m.staleBatches.Set(float64(n))
}
