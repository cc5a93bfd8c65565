// Package metrics declares the Prometheus collectors the ranking
// pipeline exposes on the metrics port, grouped by subsystem the way
// the teacher's monitoring package groups HTTP/database/cache/business
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP surface.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_http_requests_total",
		Help: "Total HTTP requests served by the ranking API.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsagent_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RSS ingestion.
var (
	IngestFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_ingest_fetched_total",
		Help: "RSS items fetched per source.",
	}, []string{"source"})

	IngestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_ingest_errors_total",
		Help: "RSS fetch/parse failures per source.",
	}, []string{"source", "reason"})

	IngestDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_ingest_duplicates_total",
		Help: "Items skipped because of a dedup hit.",
	}, []string{"source"})
)

// ML client: one set of series per remote operation,
// labeled by operation so importance/summarize/embed don't share a
// circuit breaker's counters.
var (
	MLCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_ml_calls_total",
		Help: "Calls to the ML model-serving collaborator.",
	}, []string{"operation", "outcome"}) // outcome: success, transient_error, permanent_error, timeout, fallback

	MLCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsagent_ml_call_duration_seconds",
		Help:    "ML call latency, end to end including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "newsagent_circuit_breaker_state",
		Help: "Circuit breaker state: 0=closed, 1=half_open, 2=open.",
	}, []string{"breaker"})

	CacheOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_cache_operations_total",
		Help: "ML cache lookups.",
	}, []string{"cache", "result"}) // result: hit, miss, error
)

// Embedding pipeline.
var (
	EmbeddingBacklogDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsagent_embedding_backlog_depth",
		Help: "Items currently waiting in the embedding retry backlog.",
	})

	EmbeddingProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_embedding_processed_total",
		Help: "News items embedded, by outcome.",
	}, []string{"outcome"})
)

// Clustering.
var (
	ClusteringRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_clustering_runs_total",
		Help: "Clustering batch runs, by algorithm and outcome.",
	}, []string{"algorithm", "outcome"})

	ClusteringRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsagent_clustering_run_duration_seconds",
		Help:    "Duration of a single clustering batch run.",
		Buckets: prometheus.DefBuckets,
	})

	ClustersFormed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newsagent_clusters_formed",
		Help: "Number of topic clusters after the most recent run.",
	})
)

// Ranking / MMR / personalization.
var (
	RankingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_ranking_requests_total",
		Help: "News Query Facade requests, by arm and experiment bucket.",
	}, []string{"arm", "bucket"})

	MMRDiversityDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_mmr_diversity_drops_total",
		Help: "Candidates dropped by the MMR diversity filter.",
	}, []string{"reason"}) // reason: max_per_topic, redundant
)

// Experimentation and bandit.
var (
	ExperimentAssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_experiment_assignments_total",
		Help: "Bucketer decisions, by experiment and arm.",
	}, []string{"experiment", "arm"})

	ExperimentAutoStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_experiment_auto_stops_total",
		Help: "Experiments auto-stopped by the CTR guard.",
	}, []string{"experiment"})

	BanditRewardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_bandit_rewards_total",
		Help: "Reward signals recorded per arm.",
	}, []string{"experiment", "arm"})

	BanditArmPullsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsagent_bandit_arm_pulls_total",
		Help: "Arm selections made by the bandit.",
	}, []string{"experiment", "arm", "algorithm"})
)
