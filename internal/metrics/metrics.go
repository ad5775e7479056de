// Package metrics exposes Prometheus metrics for queries and ingestion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bull/book-rag-server/internal/rag"
)

// Recorder holds the query and ingestion metrics. It implements rag.Observer.
//
// Metrics:
//   - bookrag_queries_total{mode,state} - finished runs by terminal state
//   - bookrag_refusals_total - full-mode runs answered with the refusal
//   - bookrag_errors_total{kind} - failed runs by error kind
//   - bookrag_query_duration_seconds{mode} - run latency
//   - bookrag_retrieved_chunks - chunks surviving the distance threshold
//   - bookrag_index_fragments - fragments written by the last ingestion
type Recorder struct {
	registry *prometheus.Registry

	QueriesTotal    *prometheus.CounterVec
	RefusalsTotal   prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	RetrievedChunks prometheus.Histogram
	IndexFragments  prometheus.Gauge
}

var _ rag.Observer = (*Recorder)(nil)

// NewRecorder registers the metrics on a fresh registry, which also
// carries the Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrag_queries_total",
				Help: "Total number of query runs",
			},
			[]string{"mode", "state"}, // state is "done" or "failed"
		),
		RefusalsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bookrag_refusals_total",
				Help: "Total number of answers that were the refusal message",
			},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrag_errors_total",
				Help: "Total number of failed query runs by error kind",
			},
			[]string{"kind"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrag_query_duration_seconds",
				Help:    "Duration of query runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"mode"},
		),
		RetrievedChunks: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookrag_retrieved_chunks",
				Help:    "Number of chunks returned per successful query",
				Buckets: prometheus.LinearBuckets(0, 2, 11),
			},
		),
		IndexFragments: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrag_index_fragments",
				Help: "Number of fragments in the collection after the last ingestion",
			},
		),
	}
}

// ObserveQuery records one finished run.
func (r *Recorder) ObserveQuery(mode rag.Mode, final rag.State, chunks int, refused bool, err error, elapsed time.Duration) {
	r.QueriesTotal.WithLabelValues(string(mode), string(final)).Inc()
	r.QueryDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())

	if err != nil {
		r.ErrorsTotal.WithLabelValues(rag.ErrorKind(err)).Inc()
		return
	}
	r.RetrievedChunks.Observe(float64(chunks))
	if refused {
		r.RefusalsTotal.Inc()
	}
}

// SetIndexFragments records the collection size.
func (r *Recorder) SetIndexFragments(n int) {
	r.IndexFragments.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
