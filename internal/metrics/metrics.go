// Package metrics exposes Jasper's Prometheus metrics as promauto vars at
// package scope, one block per subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignificanceDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasper_significance_decisions_total",
			Help: "Total number of significance engine decisions by kind",
		},
		[]string{"decision"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasper_pipeline_runs_total",
			Help: "Total number of analysis pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jasper_pipeline_run_duration_seconds",
			Help:    "Analysis pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasper_llm_requests_total",
			Help: "Total number of LLM provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jasper_llm_request_duration_seconds",
			Help:    "LLM provider request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider", "model"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasper_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	FrontendsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jasper_frontends_active",
			Help: "Current number of attached frontend connections",
		},
	)

	FrontendsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jasper_frontends_evicted_total",
			Help: "Total number of frontends evicted by the liveness sweep",
		},
	)

	AggregatorSourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasper_aggregator_source_failures_total",
			Help: "Total number of context source fetch failures",
		},
		[]string{"source_id"},
	)

	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jasper_config_reloads_total",
			Help: "Total number of config reload attempts by outcome",
		},
		[]string{"outcome"},
	)
)
