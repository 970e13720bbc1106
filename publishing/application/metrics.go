package application

import (
	"context"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/AzielCF/az-publisher/publishing"

// PublishMetrics records publish attempts by platform and outcome. A nil
// *PublishMetrics records nothing.
type PublishMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

func NewPublishMetrics(provider metric.MeterProvider) (*PublishMetrics, error) {
	meter := provider.Meter(meterName)
	attempts, err := meter.Int64Counter("publisher.attempts",
		metric.WithDescription("Publish attempts by platform and outcome"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("publisher.publish.duration",
		metric.WithDescription("Latency of platform publish calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &PublishMetrics{attempts: attempts, duration: duration}, nil
}

func (m *PublishMetrics) recordAttempt(ctx context.Context, p platform.Platform, outcome Outcome) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", string(p)),
		attribute.String("outcome", string(outcome)),
	))
}

func (m *PublishMetrics) recordDuration(ctx context.Context, p platform.Platform, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("platform", string(p))))
}
