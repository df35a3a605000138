// Package metrics declares the Prometheus collectors quill exports.
//
// Collectors are registered on the default registry at init so every
// component can record without wiring; the HTTP server exposes them at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "quill"

// Indexer metrics.
var (
	IndexDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_documents_total",
			Help:      "Documents processed by the indexer",
		},
		[]string{"outcome"}, // "indexed" / "failed" / "deleted"
	)

	IndexQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_queue_depth",
			Help:      "Article ids waiting to be indexed",
		},
	)

	IndexDocumentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_document_duration_seconds",
			Help:      "Time to index one document",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Embedding metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding requests sent to the worker",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	EmbeddingPendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedding_pending_requests",
			Help:      "Embedding requests awaiting a worker reply",
		},
	)

	EmbeddingWorkerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_worker_restarts_total",
			Help:      "Times the embedding worker exited and was marked for respawn",
		},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Retrieval metrics.
var (
	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieve call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	RetrievalSignalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_signal_failures_total",
			Help:      "Recall signals that failed and were skipped",
		},
		[]string{"signal"}, // "embed" / "entity" / "semantic" / "keyword"
	)
)

func init() {
	prometheus.MustRegister(
		IndexDocumentsTotal,
		IndexQueueDepth,
		IndexDocumentDuration,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingPendingRequests,
		EmbeddingWorkerRestarts,
		EmbeddingCacheTotal,
		RetrievalDuration,
		RetrievalSignalFailures,
	)
}
