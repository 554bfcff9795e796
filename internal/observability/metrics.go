package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacks_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stacks_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	StackEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacks_progression_events_total",
			Help: "Progression events by stack type and kind (started, advanced, completed, rolled_back, force_completed).",
		},
		[]string{"stack_type", "event"},
	)

	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stacks_llm_call_duration_seconds",
			Help:    "Latency of language-model calls by purpose and outcome.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"purpose", "outcome"},
	)

	EmbeddingJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacks_embedding_jobs_total",
			Help: "Background embedding jobs by outcome (indexed, failed, dropped).",
		},
		[]string{"outcome"},
	)

	EmbeddingQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stacks_embedding_queue_depth",
			Help: "Embedding jobs waiting for a worker.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		StackEvents,
		LLMDuration,
		EmbeddingJobs,
		EmbeddingQueueDepth,
	)
}
