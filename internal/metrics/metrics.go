package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the recognition engine, one
// group per pipeline stage (decode, spectrogram, hashing, matching,
// ingestion) plus the HTTP/store ambient groups.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// Decode stage
	DecodeDuration prometheus.HistogramVec
	DecodeErrors   prometheus.CounterVec

	// Spectrogram + peak picking
	SpectrogramDuration prometheus.HistogramVec
	PeaksFound          prometheus.HistogramVec

	// Hash generation
	HashesGenerated prometheus.HistogramVec

	// Index store
	StoreQueryDuration prometheus.HistogramVec
	StoreQueriesTotal  prometheus.CounterVec
	PostingsLookedUp   prometheus.HistogramVec

	// Matcher
	MatchDuration     prometheus.HistogramVec
	MatchResultsTotal prometheus.CounterVec

	// Ingestion pipeline / worker pool
	IngestJobsTotal   prometheus.CounterVec
	IngestJobDuration prometheus.HistogramVec
	IngestQueueDepth  prometheus.GaugeVec
	TaskTransitions   prometheus.CounterVec

	// Posting cache (optional redis layer)
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec

	// Raw Redis client operations (internal/cache.RedisClient)
	RedisOperationDuration prometheus.HistogramVec
	RedisOperationsTotal   prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),

			DecodeDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "audio_decode_duration_seconds",
					Help:    "Time to decode audio bytes to mono PCM",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
				},
				[]string{"container"},
			),
			DecodeErrors: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "audio_decode_errors_total",
					Help: "Total number of audio decode failures",
				},
				[]string{"container"},
			),

			SpectrogramDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "spectrogram_duration_seconds",
					Help:    "Time to compute STFT + peak picking",
					Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"stage"},
			),
			PeaksFound: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "peaks_found",
					Help:    "Number of constellation peaks found per fingerprinting pass",
					Buckets: prometheus.ExponentialBuckets(4, 2, 10),
				},
				[]string{"operation"},
			),

			HashesGenerated: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "hashes_generated",
					Help:    "Number of fingerprint hashes generated per fingerprinting pass",
					Buckets: prometheus.ExponentialBuckets(8, 2, 12),
				},
				[]string{"operation"},
			),

			StoreQueryDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "store_query_duration_seconds",
					Help:    "Index store query latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"query_type", "table"},
			),
			StoreQueriesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "store_queries_total",
					Help: "Total number of index store queries",
				},
				[]string{"query_type", "table", "status"},
			),
			PostingsLookedUp: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "postings_looked_up",
					Help:    "Number of postings returned by a single lookup() call",
					Buckets: prometheus.ExponentialBuckets(1, 4, 10),
				},
				[]string{"operation"},
			),

			MatchDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "match_duration_seconds",
					Help:    "Time to rank candidates for a query fingerprint set",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1},
				},
				[]string{"result"},
			),
			MatchResultsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "match_results_total",
					Help: "Total number of recognition attempts by outcome",
				},
				[]string{"outcome"},
			),

			IngestJobsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ingest_jobs_total",
					Help: "Total number of ingestion jobs processed by outcome",
				},
				[]string{"job_type", "status"},
			),
			IngestJobDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ingest_job_duration_seconds",
					Help:    "Ingestion job latency in seconds (decode through insert)",
					Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"job_type"},
			),
			IngestQueueDepth: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "ingest_queue_depth",
					Help: "Number of ingestion jobs currently buffered in the worker pool",
				},
				[]string{"pool"},
			),
			TaskTransitions: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "task_transitions_total",
					Help: "Total number of task ledger state transitions",
				},
				[]string{"from", "to"},
			),

			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "posting_cache_hits_total",
					Help: "Total number of posting cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "posting_cache_misses_total",
					Help: "Total number of posting cache misses",
				},
				[]string{"cache_name"},
			),

			RedisOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "redis_operation_duration_seconds",
					Help:    "Redis client operation latency in seconds",
					Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
				},
				[]string{"operation", "key_pattern"},
			),
			RedisOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "redis_operations_total",
					Help: "Total number of Redis client operations by outcome",
				},
				[]string{"operation", "status"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance, initializing it on first use.
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
