// Package metrics exposes Prometheus collectors for the ask and ingest
// pipelines. A nil *RAG records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docqa"

// Ask outcomes.
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
	OutcomeError     = "error"
)

type RAG struct {
	asks           *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	ingestedChunks prometheus.Counter
	cacheErrors    *prometheus.CounterVec
	degradedReads  prometheus.Counter
	coalescedAsks  prometheus.Counter
}

func New(reg prometheus.Registerer) *RAG {
	m := &RAG{
		asks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asks_total",
			Help:      "Ask requests by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage"}),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks written to the vector store.",
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Swallowed response cache failures by operation.",
		}, []string{"op"}),
		degradedReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_read_degraded_total",
			Help:      "Vector store reads that failed and were answered as empty.",
		}),
		coalescedAsks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asks_coalesced_total",
			Help:      "Asks that shared an in-flight identical request.",
		}),
	}
	reg.MustRegister(m.asks, m.stageDuration, m.ingestedChunks, m.cacheErrors, m.degradedReads, m.coalescedAsks)
	return m
}

// NewRegistry returns a registry with the Go and process collectors plus the
// RAG collectors.
func NewRegistry() (*prometheus.Registry, *RAG) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, New(reg)
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *RAG) Ask(outcome string) {
	if m == nil {
		return
	}
	m.asks.WithLabelValues(outcome).Inc()
}

func (m *RAG) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *RAG) IngestedChunks(n int) {
	if m == nil {
		return
	}
	m.ingestedChunks.Add(float64(n))
}

func (m *RAG) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

func (m *RAG) DegradedRead() {
	if m == nil {
		return
	}
	m.degradedReads.Inc()
}

func (m *RAG) Coalesced() {
	if m == nil {
		return
	}
	m.coalescedAsks.Inc()
}
