// Package telemetry holds the Prometheus collectors and the OpenTelemetry
// tracer shared by the index, retrieval and classification layers.
package telemetry

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

// Prometheus metrics
var (
	IndexRecords = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "docrag_index_records",
			Help: "Number of records held by the serving vector index",
		},
		func() float64 {
			if fn := activeIndex.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		},
	)
	IndexAdds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docrag_index_adds_total",
			Help: "Total number of successful index add batches",
		},
	)
	Reconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_embedding_reconciled_total",
			Help: "Embeddings whose width was reconciled to the index dimension, by action (pad, truncate)",
		},
		[]string{"action"},
	)
	Queries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docrag_queries_total",
			Help: "Total number of index queries",
		},
	)
	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docrag_query_duration_seconds",
			Help:    "Latency of index queries including query embedding",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
	)
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_classifications_total",
			Help: "Summary classifications by outcome (matched, no_match)",
		},
		[]string{"outcome"},
	)
	EmbeddingProvider = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docrag_embedding_provider_info",
			Help: "Selected embedding provider (value is always 1)",
		},
		[]string{"provider"},
	)
)

var tracer = otel.Tracer("docrag")

var activeIndex atomic.Pointer[func() int]

// TrackIndex makes size the source of docrag_index_records. Only the serving
// pipeline registers itself, so replaced or throwaway indexes never report.
// A nil size resets the gauge to zero.
func TrackIndex(size func() int) {
	if size == nil {
		activeIndex.Store(nil)
		return
	}
	activeIndex.Store(&size)
}

func init() {
	Registry.MustRegister(IndexRecords, IndexAdds, Reconciled, Queries, QueryDuration, Classifications, EmbeddingProvider)
}

// StartSpan starts a span on the docrag tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
