package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records gateway counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests         metric.Int64Counter
	cacheLookups     metric.Int64Counter
	quotaRejections  metric.Int64Counter
	quotaDegraded    metric.Int64Counter
	upstreamFailures metric.Int64Counter
	duration         metric.Float64Histogram
}

// InitMetrics builds a Prometheus-backed meter and returns the recorder and
// the /metrics handler. Both are nil when metrics are disabled.
func InitMetrics(cfg config.TelemetryConfig) (*Metrics, http.Handler, error) {
	if !cfg.MetricsEnabled {
		log.Info().Msg("🔕 Metrics disabled")
		return nil, nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := NewMetrics(provider.Meter(TracerName))
	if err != nil {
		return nil, nil, err
	}

	log.Info().Msg("📈 Prometheus metrics initialized")
	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// NewMetrics creates the gateway instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.requests, err = meter.Int64Counter("chat_requests",
		metric.WithDescription("Chat requests by terminal outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	if m.cacheLookups, err = meter.Int64Counter("chat_cache_lookups",
		metric.WithDescription("Response cache lookups by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache counter: %w", err)
	}
	if m.quotaRejections, err = meter.Int64Counter("chat_quota_rejections",
		metric.WithDescription("Requests rejected by quota scope"),
	); err != nil {
		return nil, fmt.Errorf("failed to create quota rejection counter: %w", err)
	}
	if m.quotaDegraded, err = meter.Int64Counter("chat_quota_degraded",
		metric.WithDescription("Requests admitted unmetered because the counter store failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create quota degraded counter: %w", err)
	}
	if m.upstreamFailures, err = meter.Int64Counter("chat_upstream_failures",
		metric.WithDescription("Retrieval and completion failures by stage"),
	); err != nil {
		return nil, fmt.Errorf("failed to create upstream failure counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("chat_request_duration",
		metric.WithDescription("Chat request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &m, nil
}

// RequestFinished records the terminal outcome and latency of one request.
func (m *Metrics) RequestFinished(ctx context.Context, outcome string, streaming bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("streaming", streaming),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// QuotaRejected records a request refused by the named scope.
func (m *Metrics) QuotaRejected(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	m.quotaRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

// QuotaDegraded records a fail-open admission.
func (m *Metrics) QuotaDegraded(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.quotaDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// UpstreamFailed records a failed retrieval or completion attempt.
func (m *Metrics) UpstreamFailed(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.upstreamFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
