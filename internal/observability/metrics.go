package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/dwd-warning-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (dashboard reload storms).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Home Assistant API call rate by outcome. Watch for: error vs success ratio.
	HomeAssistantCallsTotal *prometheus.CounterVec

	// Home Assistant /api/states latency. Large installs return big listings; watch p95.
	HomeAssistantDuration *prometheus.HistogramVec

	// Failed Home Assistant fetches (after retries) by error category.
	HomeAssistantErrorsTotal *prometheus.CounterVec

	// State fetches answered by joining a concurrent in-flight fetch.
	HomeAssistantCoalescedTotal prometheus.Counter

	// Retry attempts for Home Assistant calls. Watch for: high retries = unstable upstream.
	HomeAssistantRetriesTotal prometheus.Counter

	// State listing cache hits by backend.
	CacheHitsTotal *prometheus.CounterVec

	// Cache errors by operation (get/set) and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation and result.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Card evaluations by outcome: recomputed (relevant entity changed) or skipped.
	CardEvaluationsTotal *prometheus.CounterVec

	// Last computed grid size per card.
	CardGridSize *prometheus.GaugeVec

	// Active warnings per card and source (primary/secondary).
	CardWarnings *prometheus.GaugeVec

	// Background refresh runs and failures.
	RefreshTotal        prometheus.Counter
	RefreshErrorsTotal  prometheus.Counter
	RefreshDurationSecs prometheus.Histogram

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker transitions and current state (0 closed, 1 open, 2 half_open).
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
	CircuitBreakerState            *prometheus.GaugeVec

	// In-flight requests at shutdown.
	ShutdownInFlightRequests prometheus.Gauge

	rateLimitGaugesOnce sync.Once
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
	HomeAssistantCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeAssistantCallsTotal",
			Help: "Total number of Home Assistant API calls",
		},
		[]string{"status"},
	)
	HomeAssistantDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homeAssistantDurationSeconds",
			Help:    "Home Assistant API latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)
	HomeAssistantRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "homeAssistantRetriesTotal",
			Help: "Total number of retry attempts for Home Assistant API calls",
		},
	)
	HomeAssistantCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "homeAssistantCoalescedTotal",
			Help: "State fetches served by joining a concurrent in-flight fetch",
		},
	)
	HomeAssistantErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeAssistantErrorsTotal",
			Help: "Failed Home Assistant state fetches by error category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of state listing cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "result"},
	)
	CardEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardEvaluationsTotal",
			Help: "Card evaluations by result (recomputed or skipped)",
		},
		[]string{"card", "result"},
	)
	CardGridSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardGridSize",
			Help: "Last estimated grid size per card",
		},
		[]string{"card"},
	)
	CardWarnings = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardWarnings",
			Help: "Active warnings per card and source",
		},
		[]string{"card", "source"},
	)
	RefreshTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refreshTotal",
			Help: "Total number of background state refreshes",
		},
	)
	RefreshErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refreshErrorsTotal",
			Help: "Total number of failed background state refreshes",
		},
	)
	RefreshDurationSecs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refreshDurationSeconds",
			Help:    "Background state refresh duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state changes by component",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half_open)",
		},
		[]string{"component"},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "Requests still in flight when graceful shutdown started",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		HomeAssistantCallsTotal, HomeAssistantDuration, HomeAssistantRetriesTotal, HomeAssistantErrorsTotal, HomeAssistantCoalescedTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CardEvaluationsTotal, CardGridSize, CardWarnings,
		RefreshTotal, RefreshErrorsTotal, RefreshDurationSecs,
		RateLimitDeniedTotal, ShutdownInFlightRequests,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
	)
}

// RegisterRateLimitGauges registers the denial gauge for the rate-limited path.
// Call from main after config load; window should match the degraded window.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting dashboard requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordCardEvaluation records whether a card view was recomputed or served as-is.
func RecordCardEvaluation(card string, recomputed bool) {
	result := "skipped"
	if recomputed {
		result = "recomputed"
	}
	CardEvaluationsTotal.WithLabelValues(card, result).Inc()
}

// RecordCardView publishes the size and warning counts of a freshly computed card.
func RecordCardView(card string, gridSize, primary, secondary int) {
	CardGridSize.WithLabelValues(card).Set(float64(gridSize))
	CardWarnings.WithLabelValues(card, "primary").Set(float64(primary))
	CardWarnings.WithLabelValues(card, "secondary").Set(float64(secondary))
}

// RecordCircuitBreakerTransition counts a breaker state change for component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge publishes the current breaker state of component.
func SetCircuitBreakerStateGauge(component string, value float64) {
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// CircuitBreakerStateValue converts a breaker state ordinal to its gauge value.
func CircuitBreakerStateValue(state int) float64 {
	return float64(state)
}

// RecordShutdownInFlight records the in-flight request count at shutdown start.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlightRequests.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
