package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierec_query_duration_seconds",
			Help:    "Recommendation request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"parser"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_query_total",
			Help: "Total number of recommendation requests processed",
		},
		[]string{"status"},
	)

	ResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "movierec_results_count",
			Help:    "Number of recommendations returned per request",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	ParserFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_parser_fallbacks_total",
			Help: "Model-backed parses or explanations that fell back to heuristics",
		},
		[]string{"stage"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "to"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_cache_hits_total",
			Help: "Stats cache hits",
		},
		[]string{"tier"},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "movierec_cache_misses_total",
			Help: "Stats cache misses that ran the aggregation",
		},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_cache_errors_total",
			Help: "Stats cache store failures, by operation",
		},
		[]string{"op"},
	)

	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "movierec_aggregation_duration_seconds",
			Help:    "Time spent aggregating rating statistics",
			Buckets: prometheus.DefBuckets,
		},
	)

	CatalogMovies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierec_catalog_movies",
			Help: "Movies in the live catalog snapshot",
		},
	)

	CatalogRatings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierec_catalog_ratings",
			Help: "Ratings in the live catalog snapshot",
		},
	)

	CatalogReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_catalog_reloads_total",
			Help: "Catalog reload attempts",
		},
		[]string{"status"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(ResultsCount)
		prometheus.MustRegister(ParserFallbacks)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(BreakerTransitions)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(CacheErrors)
		prometheus.MustRegister(AggregationDuration)
		prometheus.MustRegister(CatalogMovies)
		prometheus.MustRegister(CatalogRatings)
		prometheus.MustRegister(CatalogReloads)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
