package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the presentation API.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p99 close to the 10s provider timeout.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call rate by HTTP status class. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Provider latency. Anything near 10s is about to become a TIMEOUT.
	WeatherAPIDuration *prometheus.HistogramVec

	// Classified fetch failures by error kind (NOT_FOUND, TIMEOUT, ...).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Orchestrated searches by outcome (success, failed, superseded).
	SearchesTotal *prometheus.CounterVec

	// Current number of history entries.
	HistoryEntries prometheus.Gauge

	// History persistence failures by operation (load, save). Never surfaced to callers.
	HistoryPersistErrorsTotal *prometheus.CounterVec

	// History persistence latency by operation.
	HistoryPersistDuration *prometheus.HistogramVec

	// Rate limit denials on the search route.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component (0 closed, 1 half-open, 2 open).
	CircuitBreakerState *prometheus.GaugeVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather provider API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Classified weather fetch failures by error kind",
		},
		[]string{"kind"},
	)
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchesTotal",
			Help: "Searches by outcome",
		},
		[]string{"outcome"},
	)
	HistoryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "historyEntries",
			Help: "Number of entries currently in search history",
		},
	)
	HistoryPersistErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historyPersistErrorsTotal",
			Help: "Search history persistence failures by operation",
		},
		[]string{"op"},
	)
	HistoryPersistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "historyPersistDurationSeconds",
			Help:    "Search history persistence latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		SearchesTotal,
		HistoryEntries, HistoryPersistErrorsTotal, HistoryPersistDuration,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RecordSearch counts one orchestrated search outcome.
func RecordSearch(outcome string) {
	SearchesTotal.WithLabelValues(outcome).Inc()
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
// state is 0 closed, 1 half-open, 2 open.
func RecordCircuitBreakerTransition(component, from, to string, state float64) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(state)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
