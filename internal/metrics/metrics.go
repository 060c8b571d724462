package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Investigator metrics for production monitoring
var (
	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_turns_total",
			Help: "Total number of processed turns",
		},
		[]string{"status", "outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_investigator_turn_duration_seconds",
			Help:    "Turn processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_status_transitions_total",
			Help: "Total number of case status transitions",
		},
		[]string{"from", "to"},
	)

	DegradedModeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_degraded_mode_total",
			Help: "Total number of degraded mode events",
		},
		[]string{"event"}, // event: entered/exited/conflict
	)

	// Hypothesis metrics
	HypothesisTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_hypothesis_transitions_total",
			Help: "Total number of automatic hypothesis status transitions",
		},
		[]string{"status"},
	)

	AnchoringDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_anchoring_detected_total",
			Help: "Total number of anchoring bias detections",
		},
	)

	// Memory metrics
	MemoryCompressions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_memory_compressions_total",
			Help: "Total number of memory compression passes",
		},
	)

	SummarizerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_summarizer_fallbacks_total",
			Help: "Total number of summaries produced by the deterministic fallback",
		},
	)

	MemoryEstimatedTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubilitics_investigator_memory_estimated_tokens",
			Help:    "Estimated token usage of case memory after each update",
			Buckets: prometheus.LinearBuckets(100, 200, 10), // 100 to 1900
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_investigator_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	// Store metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_store_operations_total",
			Help: "Total number of case store operations",
		},
		[]string{"backend", "op", "status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_investigator_case_cache_lookups_total",
			Help: "Total number of case cache lookups",
		},
		[]string{"result"}, // result: hit/miss
	)
)
