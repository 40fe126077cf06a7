// Package monitoring holds the Prometheus collectors of the engine.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache reads by result (hit, miss, error, bypass).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	// CacheInvalidations counts keys removed by pattern invalidation.
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gymflow_cache_invalidated_keys_total",
		Help: "Cache keys removed by invalidation",
	})

	// StrategyOutcomes counts strategy attempts by flow, strategy and outcome
	// (served, skipped, rate_limited, failed, empty).
	StrategyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_strategy_outcomes_total",
		Help: "Suggestion strategy attempts by outcome",
	}, []string{"flow", "strategy", "outcome"})

	// SuggestionDuration measures end-to-end suggestion latency.
	SuggestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gymflow_suggestion_duration_seconds",
		Help:    "Suggestion request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"flow", "method"})

	// EmbeddingRequests counts embedding provider calls by outcome.
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_embedding_requests_total",
		Help: "Embedding provider calls by outcome",
	}, []string{"provider", "outcome"})

	// VectorMatches observes the number of matches per vector search.
	VectorMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gymflow_vector_matches",
		Help:    "Matches returned per vector search",
		Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
	})

	// FilteredCandidates counts candidates removed by hard constraints.
	FilteredCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_filtered_candidates_total",
		Help: "Candidates removed by hard constraints",
	}, []string{"reason"})

	// WarmRuns counts cache-warming cycles by outcome (completed, skipped).
	WarmRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_cache_warm_runs_total",
		Help: "Cache warming cycles by outcome",
	}, []string{"outcome"})

	// BackgroundTasks counts background queue tasks by kind and outcome
	// (done, failed, dropped).
	BackgroundTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_background_tasks_total",
		Help: "Background tasks by kind and outcome",
	}, []string{"kind", "outcome"})

	// BackgroundQueueDepth is the number of tasks waiting in the queue.
	BackgroundQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gymflow_background_queue_depth",
		Help: "Tasks waiting in the background queue",
	})
)

var (
	// CircuitBreakerState is the state of a breaker (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gymflow_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	// CircuitBreakerTransitions counts breaker state transitions.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})
)
