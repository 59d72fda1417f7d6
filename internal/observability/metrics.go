package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ServiceName labels logs, traces and the Pushgateway job.
const ServiceName = "weather-monitor"

var (
	registry *prometheus.Registry

	// Upstream (MET Norway) call rate by endpoint and status. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 approaching the client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts. High values mean an unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Circuit breaker transitions by component/from/to.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Forecast cache lookups by result (hit, miss, error).
	CacheLookupsTotal *prometheus.CounterVec

	// Per-location fetch failures by error category.
	FetchErrorsTotal *prometheus.CounterVec

	// Notification deliveries by sink and outcome (success, failure).
	DeliveriesTotal *prometheus.CounterVec

	// Alert findings per criterion in the last run.
	FindingsTotal *prometheus.CounterVec

	// Pipeline runs by outcome (success, partial, aborted).
	RunsTotal *prometheus.CounterVec

	// End-to-end run latency.
	RunDuration prometheus.Histogram

	// Unix time of the last completed run. Watch for: staleness (trigger not firing).
	LastRunTimestamp prometheus.Gauge

	// HTTP request rate in serve mode.
	HTTPRequestsTotal *prometheus.CounterVec

	// Serve-mode latency by route.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in serve mode.
	HTTPRequestsInFlight prometheus.Gauge

	// POST /run requests turned away by reason (rate_limited, in_progress, shutting_down).
	RunRejectionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of MET Norway API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "MET Norway API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for MET Norway API calls",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastCacheLookupsTotal",
			Help: "Forecast cache lookups by result",
		},
		[]string{"result"},
	)
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchErrorsTotal",
			Help: "Per-location forecast fetch failures by category",
		},
		[]string{"category"},
	)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notificationDeliveriesTotal",
			Help: "Notification deliveries by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)
	FindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertFindingsTotal",
			Help: "Locations that met an alert criterion",
		},
		[]string{"criterion"},
	)
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitorRunsTotal",
			Help: "Pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitorRunDurationSeconds",
			Help:    "End-to-end pipeline run latency in seconds",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		},
	)
	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitorLastRunTimestampSeconds",
			Help: "Unix time of the last completed run",
		},
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
			Help:    "HTTP request latency in seconds",
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
	RunRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runRejectionsTotal",
			Help: "Run triggers rejected by reason",
		},
		[]string{"reason"},
	)

	registry.MustRegister(
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		CircuitBreakerTransitionsTotal, CacheLookupsTotal, FetchErrorsTotal,
		DeliveriesTotal, FindingsTotal,
		RunsTotal, RunDuration, LastRunTimestamp,
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RunRejectionsTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// PushMetrics pushes the registry to a Prometheus Pushgateway. One-shot runs
// exit before a scrape could happen, so this is how their metrics get out.
// A blank url is a no-op.
func PushMetrics(ctx context.Context, url, instance string) error {
	if url == "" {
		return nil
	}
	p := push.New(url, ServiceName).Gatherer(registry)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
