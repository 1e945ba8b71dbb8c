package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Kxd395/AxxessWebUI"

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	httpRequestSize     metric.Int64Histogram
	httpResponseSize    metric.Int64Histogram

	authEvents        metric.Int64Counter
	ssoCallbacks      metric.Int64Counter
	webhookDeliveries metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter(meterName))
}

// NewOTelMetricsWithMeter creates instruments on meter
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.httpRequestSize, err = meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request size histogram: %w", err)
	}

	m.httpResponseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http response size histogram: %w", err)
	}

	m.authEvents, err = meter.Int64Counter(
		"auth.events",
		metric.WithDescription("Authentication events by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth events counter: %w", err)
	}

	m.ssoCallbacks, err = meter.Int64Counter(
		"auth.sso.callbacks",
		metric.WithDescription("SSO callbacks by outcome"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sso callbacks counter: %w", err)
	}

	m.webhookDeliveries, err = meter.Int64Counter(
		"webhook.deliveries",
		metric.WithDescription("Webhook deliveries by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook deliveries counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)

	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)

	if requestSize > 0 {
		m.httpRequestSize.Record(ctx, requestSize, attrs)
	}
	if responseSize > 0 {
		m.httpResponseSize.Record(ctx, responseSize, attrs)
	}
}

// RecordAuthEvent records an authentication event
func (m *OTelMetrics) RecordAuthEvent(ctx context.Context, event string, success bool) {
	m.authEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth.event", event),
		attribute.Bool("auth.success", success),
	))
}

// RecordSSOCallback records a finished SSO callback
func (m *OTelMetrics) RecordSSOCallback(ctx context.Context, provider, outcome string) {
	m.ssoCallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sso.provider", provider),
		attribute.String("sso.outcome", outcome),
	))
}

// RecordWebhookDelivery records a webhook delivery outcome
func (m *OTelMetrics) RecordWebhookDelivery(ctx context.Context, target string, success bool) {
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("webhook.target", target),
		attribute.Bool("webhook.success", success),
	))
}
