package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetbot_pipeline_requests_total",
			Help: "Total number of questions answered by the pipeline",
		},
		[]string{"mode", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetbot_pipeline_request_duration_seconds",
			Help:    "Duration of pipeline requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"mode"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetbot_pipeline_retries_total",
			Help: "Total number of pipeline retries by error kind",
		},
		[]string{"kind"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetbot_llm_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"purpose", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetbot_llm_call_duration_seconds",
			Help:    "Duration of language model calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"purpose"},
	)
)
