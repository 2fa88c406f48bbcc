package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// OAuth token lifecycle
	RecordCodeExchange(provider string, success bool)
	RecordTokenRefresh(provider string, success bool)
	RecordRefreshDeduped(provider string)

	// Upstream resource calls
	RecordUpstreamRequest(provider, resource string, statusCode int, duration time.Duration)

	// Response cache
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)

	// Insights upstream
	RecordInsightsRequest(success bool, duration time.Duration)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token lifecycle
	CodeExchangesTotal  *prometheus.CounterVec
	TokenRefreshesTotal *prometheus.CounterVec
	RefreshDedupedTotal *prometheus.CounterVec

	// Upstream resource calls
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Response cache
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Insights upstream
	InsightsRequestsTotal   *prometheus.CounterVec
	InsightsRequestDuration prometheus.Histogram

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// If enabled=true, returns Prometheus-based Metrics.
// If enabled=false, returns NoopMetrics (zero overhead).
// Uses sync.Once to ensure Prometheus metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	return &Metrics{
		CodeExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_code_exchanges_total",
				Help: "Total number of authorization-code exchanges",
			},
			[]string{"provider", "result"}, // success, error
		),
		TokenRefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_refreshes_total",
				Help: "Total number of token refresh calls to providers",
			},
			[]string{"provider", "result"},
		),
		RefreshDedupedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_refreshes_deduped_total",
				Help: "Refresh attempts that joined an in-flight refresh instead of calling the provider",
			},
			[]string{"provider"},
		),

		UpstreamRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total number of provider resource API requests",
			},
			[]string{"provider", "resource", "status"},
		),
		UpstreamRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_request_duration_seconds",
				Help:    "Duration of provider resource API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "resource"},
		),

		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "response_cache_hits_total",
				Help: "Resource responses served from cache",
			},
			[]string{"resource"},
		),
		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "response_cache_misses_total",
				Help: "Resource requests that missed the cache",
			},
			[]string{"resource"},
		),

		InsightsRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_requests_total",
				Help: "Total number of insights upstream requests",
			},
			[]string{"result"},
		),
		InsightsRequestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "insights_request_duration_seconds",
				Help:    "Duration of insights upstream requests",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of in-flight HTTP requests",
			},
		),
	}
}

const (
	resultSuccess = "success"
	resultError   = "error"
)

func resultLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultError
}

// RecordCodeExchange records an authorization-code exchange attempt
func (m *Metrics) RecordCodeExchange(provider string, success bool) {
	m.CodeExchangesTotal.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordTokenRefresh records a provider refresh call
func (m *Metrics) RecordTokenRefresh(provider string, success bool) {
	m.TokenRefreshesTotal.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordRefreshDeduped records a refresh attempt collapsed into an
// in-flight one
func (m *Metrics) RecordRefreshDeduped(provider string) {
	m.RefreshDedupedTotal.WithLabelValues(provider).Inc()
}

// RecordUpstreamRequest records a provider resource API call
func (m *Metrics) RecordUpstreamRequest(
	provider, resource string,
	statusCode int,
	duration time.Duration,
) {
	m.UpstreamRequestsTotal.WithLabelValues(provider, resource, statusText(statusCode)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(provider, resource).Observe(duration.Seconds())
}

// RecordCacheHit records a resource response served from cache
func (m *Metrics) RecordCacheHit(resource string) {
	m.CacheHitsTotal.WithLabelValues(resource).Inc()
}

// RecordCacheMiss records a resource request that missed the cache
func (m *Metrics) RecordCacheMiss(resource string) {
	m.CacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordInsightsRequest records an insights upstream call
func (m *Metrics) RecordInsightsRequest(success bool, duration time.Duration) {
	m.InsightsRequestsTotal.WithLabelValues(resultLabel(success)).Inc()
	m.InsightsRequestDuration.Observe(duration.Seconds())
}

func statusText(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
