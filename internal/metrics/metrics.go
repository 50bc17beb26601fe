package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pal_chat_requests_total",
			Help: "Total number of chat turns by outcome",
		},
		[]string{"status"},
	)

	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pal_chat_duration_seconds",
			Help:    "Duration of a chat turn including retrieval and generation",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"provider"},
	)

	RetrievalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pal_retrieval_total",
			Help: "Retrievals by the source that produced the context",
		},
		[]string{"source"},
	)

	DocumentsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pal_documents_processed_total",
			Help: "Documents that reached a terminal processing status",
		},
		[]string{"status"},
	)

	ChunksIndexed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pal_index_chunks",
			Help: "Number of chunks held by the in-memory similarity index",
		},
	)

	EmbeddingCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pal_embedding_cache_hits_total",
			Help: "Embedding cache hits per cache layer",
		},
		[]string{"layer"},
	)

	EmbeddingFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pal_embedding_fallback_total",
			Help: "Embeddings served by the local hash fallback",
		},
	)
)

func ObserveChat(provider string, err error, cost time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ChatRequestsTotal.WithLabelValues(status).Inc()
	ChatDuration.WithLabelValues(provider).Observe(cost.Seconds())
}

func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
