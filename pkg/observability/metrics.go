package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth metrics
	AuthEventsTotal        *prometheus.CounterVec
	SSOCallbacksTotal      *prometheus.CounterVec
	WebhookDeliveriesTotal *prometheus.CounterVec
	RateLimitedTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
	RedisConnectionsIdle   prometheus.Gauge

	// Business metrics
	UsersTotal prometheus.Gauge

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webui_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webui_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webui_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Auth metrics
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_auth_events_total",
				Help: "Total number of authentication events",
			},
			[]string{"event", "status"},
		),
		SSOCallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_sso_callbacks_total",
				Help: "Total number of SSO callbacks by outcome",
			},
			[]string{"provider", "outcome"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_webhook_deliveries_total",
				Help: "Total number of webhook deliveries",
			},
			[]string{"target", "status"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_rate_limited_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_cache_hits_total",
				Help: "Total number of user cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webui_cache_misses_total",
				Help: "Total number of user cache misses",
			},
			[]string{"layer"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_redis_connections_active",
				Help: "Number of Redis connections in the pool",
			},
		),
		RedisConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_redis_connections_idle",
				Help: "Number of idle Redis connections",
			},
		),

		// Business metrics
		UsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "webui_users_total",
				Help: "Total number of registered users",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.AuthEventsTotal,
		m.SSOCallbacksTotal,
		m.WebhookDeliveriesTotal,
		m.RateLimitedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.RedisConnectionsIdle,
		m.UsersTotal,
	)

	return m
}

// WithOTel mirrors recorded events to OpenTelemetry instruments
func (m *Metrics) WithOTel(otelMetrics *OTelMetrics) *Metrics {
	m.otel = otelMetrics
	return m
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordAuthEvent counts a sign-in, signup or token event
func (m *Metrics) RecordAuthEvent(event string, success bool) {
	m.AuthEventsTotal.WithLabelValues(event, statusLabel(success)).Inc()
	if m.otel != nil {
		m.otel.RecordAuthEvent(context.Background(), event, success)
	}
}

// RecordSSOCallback counts a finished SSO callback
func (m *Metrics) RecordSSOCallback(provider, outcome string) {
	m.SSOCallbacksTotal.WithLabelValues(provider, outcome).Inc()
	if m.otel != nil {
		m.otel.RecordSSOCallback(context.Background(), provider, outcome)
	}
}

// RecordWebhookDelivery counts a webhook delivery outcome
func (m *Metrics) RecordWebhookDelivery(target string, success bool) {
	m.WebhookDeliveriesTotal.WithLabelValues(target, statusLabel(success)).Inc()
	if m.otel != nil {
		m.otel.RecordWebhookDelivery(context.Background(), target, success)
	}
}

// RecordRateLimited counts a rejected request
func (m *Metrics) RecordRateLimited(limiter string) {
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// RecordCacheHit counts a user cache hit on layer (l1 or l2)
func (m *Metrics) RecordCacheHit(layer string) {
	m.CacheHitsTotal.WithLabelValues(layer).Inc()
}

// RecordCacheMiss counts a user cache miss on layer (l1 or l2)
func (m *Metrics) RecordCacheMiss(layer string) {
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
}

// SetUsersTotal sets the registered users gauge
func (m *Metrics) SetUsersTotal(count int64) {
	m.UsersTotal.Set(float64(count))
}

// UpdateDBStats copies connection pool statistics into the database gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// UpdateRedisPoolStats sets the Redis pool gauges
func (m *Metrics) UpdateRedisPoolStats(total, idle uint32) {
	m.RedisConnectionsActive.Set(float64(total))
	m.RedisConnectionsIdle.Set(float64(idle))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the route template so path parameters do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Install it with router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			duration := time.Since(start)
			status := strconv.Itoa(rw.statusCode)

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))

			if metrics.otel != nil {
				metrics.otel.RecordHTTPRequest(r.Context(), r.Method, path, rw.statusCode, duration, r.ContentLength, int64(rw.bytesWritten))
			}
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
}
