// Package observability holds the service's logging, metrics, tracing,
// health and shutdown plumbing.
//
// # Logging
//
// Logger writes JSON records through log/slog:
//
//	logger := observability.NewServiceLogger(observability.InfoLevel, os.Stdout, "webui-auth", version)
//	logger.WithField("email", email).WithError(err).Warn("signin failed")
//
// Request handlers use FromContext, which adds request_id, user_id and the
// active trace ids.
//
// # Metrics
//
// Metrics registers webui_* Prometheus series on a registry and, after
// WithOTel, mirrors auth, SSO and webhook counters to OpenTelemetry:
//
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	metrics.RecordAuthEvent("signin", true)
//
// # Health
//
// HealthChecker runs registered checks in parallel. A failing critical
// dependency answers 503 on /health/ready; optional ones only degrade it.
//
//	checker.Register("database", true, observability.DatabaseCheck(db))
//	checker.Register("redis", false, observability.RedisCheck(client))
//
// # Shutdown
//
// ShutdownManager stops HTTP servers concurrently, then runs named hooks in
// reverse registration order and joins their errors.
package observability
