package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renterchat_turns_total",
			Help: "Total number of conversation turns by resulting action",
		},
		[]string{"action"},
	)

	InvalidEnvelopes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "renterchat_invalid_envelopes_total",
			Help: "Total number of inbound messages rejected before processing",
		},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renterchat_tool_calls_total",
			Help: "Total number of domain tool calls by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renterchat_tool_duration_seconds",
			Help:    "Duration of domain tool calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"tool"},
	)

	MatcherResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renterchat_matcher_resolutions_total",
			Help: "Fuzzy resolutions by catalog, strategy and outcome",
		},
		[]string{"catalog", "strategy", "outcome"},
	)

	EmbeddingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "renterchat_embedding_failures_total",
			Help: "Embedding computations that failed and fell back to string matching",
		},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renterchat_llm_duration_seconds",
			Help:    "Duration of reply composition calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	LLMFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renterchat_llm_failures_total",
			Help: "Reply composition failures by provider",
		},
		[]string{"provider"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renterchat_active_sessions",
			Help: "Number of client memories held by the session store",
		},
	)
)
