package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EnrichmentDuration tracks wall time of the full enrichment pipeline.
	EnrichmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_enrichment_duration_seconds",
			Help:    "Time to enrich one feedback submission",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "outcome"},
	)

	// EnrichmentTotal counts submissions by source and outcome.
	EnrichmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_enrichment_total",
			Help: "Feedback submissions processed",
		},
		[]string{"source", "outcome"},
	)

	// ChatDuration tracks assistant response latency by operation.
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signal_chat_duration_seconds",
			Help:    "Time to produce an assistant response",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"operation"},
	)

	// ContextSourceHits counts context documents contributed per source.
	ContextSourceHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_context_source_hits_total",
			Help: "Context documents retrieved per source",
		},
		[]string{"source"},
	)

	// TokensUsed counts model tokens by direction.
	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_tokens_used_total",
			Help: "Model tokens consumed",
		},
		[]string{"direction"},
	)

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)
)

func Init() {
	prometheus.MustRegister(
		EnrichmentDuration,
		EnrichmentTotal,
		ChatDuration,
		ContextSourceHits,
		TokensUsed,
		HTTPRequests,
	)
}

// MetricsHandler exposes the prometheus registry as a fiber handler.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
