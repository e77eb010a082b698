package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. With the coarse forecast cache lock this climbs while a fetch is blocked upstream.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls by api (onecall, geocoding) and status. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Every forecast miss pays this while holding the cache lock.
	UpstreamDuration *prometheus.HistogramVec

	// Circuit breaker state per upstream api: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Forecast cache lookups served from a fresh entry.
	ForecastCacheHitsTotal prometheus.Counter

	// Forecast cache lookups that required a fetch, by reason (absent, stale).
	ForecastCacheMissesTotal *prometheus.CounterVec

	// Fetches issued by the forecast cache, by outcome. Failures leave the stored entry untouched.
	ForecastFetchesTotal *prometheus.CounterVec

	// Callers that shared another caller's in-flight fetch (single_flight locking only).
	ForecastFetchesSharedTotal prometheus.Counter

	// Entries currently held by the forecast cache.
	ForecastCacheEntries prometheus.Gauge

	// Callers waiting on the same forecast key at once, observed when more than one.
	// High values with coarse locking mean requests are queueing behind one fetch.
	ForecastKeyConcurrency prometheus.Histogram

	// Janitor sweeps and how many stale entries they reclaimed.
	JanitorSweepsTotal          prometheus.Counter
	JanitorEvictionsTotal       prometheus.Counter
	JanitorSweepDurationSeconds prometheus.Histogram

	// Geocode lookups served by the location cache, by backend.
	LocationCacheHitsTotal *prometheus.CounterVec

	// Location cache backend errors by operation (get, set). The lookup falls through to the Geo API.
	LocationCacheErrorsTotal *prometheus.CounterVec

	// Cache warm-up runs and failures.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of OpenWeather API calls",
		},
		[]string{"api", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "OpenWeather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "status"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per upstream api (0 closed, 1 half-open, 2 open)",
		},
		[]string{"api"},
	)
	ForecastCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastCacheHitsTotal",
			Help: "Forecast lookups served from a fresh cache entry",
		},
	)
	ForecastCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastCacheMissesTotal",
			Help: "Forecast lookups that required an upstream fetch",
		},
		[]string{"reason"},
	)
	ForecastFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastFetchesTotal",
			Help: "Upstream fetches issued by the forecast cache",
		},
		[]string{"status"},
	)
	ForecastFetchesSharedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastFetchesSharedTotal",
			Help: "Callers that received the result of another caller's in-flight fetch",
		},
	)
	ForecastCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forecastCacheEntries",
			Help: "Entries currently held by the forecast cache",
		},
	)
	ForecastKeyConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecastKeyConcurrency",
			Help:    "Concurrent callers requesting the same forecast key",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
	)
	JanitorSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "janitorSweepsTotal",
			Help: "Forecast cache sweeps run by the janitor",
		},
	)
	JanitorEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "janitorEvictionsTotal",
			Help: "Stale forecast entries removed by the janitor",
		},
	)
	JanitorSweepDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "janitorSweepDurationSeconds",
			Help:    "Time spent in a single sweep, including lock wait",
			Buckets: []float64{.0001, .001, .01, .1, 1, 10},
		},
	)
	LocationCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationCacheHitsTotal",
			Help: "Geocode lookups served from the location cache",
		},
		[]string{"backend"},
	)
	LocationCacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationCacheErrorsTotal",
			Help: "Location cache backend errors by operation",
		},
		[]string{"operation"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Forecast cache warm-up runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Warm-up runs where at least one location failed",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of a warm-up run",
			Buckets: prometheus.DefBuckets,
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, CircuitBreakerState,
		ForecastCacheHitsTotal, ForecastCacheMissesTotal, ForecastFetchesTotal,
		ForecastFetchesSharedTotal, ForecastCacheEntries, ForecastKeyConcurrency,
		JanitorSweepsTotal, JanitorEvictionsTotal, JanitorSweepDurationSeconds,
		LocationCacheHitsTotal, LocationCacheErrorsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
