package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codementor_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codementor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codementor_chat_requests_total",
			Help: "Chat requests by admission outcome.",
		},
		[]string{"outcome"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codementor_provider_requests_total",
			Help: "Upstream model calls by provider and status.",
		},
		[]string{"provider", "status"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codementor_provider_latency_seconds",
			Help:    "Upstream model call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider"},
	)

	TokensConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codementor_tokens_consumed_total",
			Help: "Prompt and response tokens billed against user buckets.",
		},
		[]string{"provider", "kind"},
	)

	HistoryTrimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codementor_history_trims_total",
			Help: "Conversation histories shrunk to fit a token budget.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChatRequestsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		TokensConsumedTotal,
		HistoryTrimsTotal,
	)
}
