package application

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestCoordinatorRecordsAttemptMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewPublishMetrics(provider)
	require.NoError(t, err)

	h := newHarness(t, fakeTokens{}, nil, nil, WithMetrics(metrics))
	schedule(t, h.store, "P1", platform.X, baseTime.Add(-time.Minute))
	h.tick(t)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	var attempts int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "publisher.attempts" {
				for _, dp := range sum.DataPoints {
					attempts += dp.Value
					outcome, _ := dp.Attributes.Value("outcome")
					assert.Equal(t, string(OutcomePublished), outcome.AsString())
				}
			}
		}
	}
	assert.True(t, names["publisher.publish.duration"])
	assert.EqualValues(t, 1, attempts)
}
