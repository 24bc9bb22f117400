package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "checkout_completed"),
		attribute.String("user_id", "u_1"),
		attribute.String("event_id", "evt_1"),
		attribute.String("outcome", "applied"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("kind"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestRecordWebhookEvent(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "subsync-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordWebhookEvent(ctx, "checkout_completed", "applied")
	m.RecordWebhookEvent(ctx, "checkout_completed", "applied")
	m.RecordWebhookEvent(ctx, "invoice_payment_failed", "duplicate")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "subsync_webhook_events_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), total)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordWebhookEvent(context.Background(), "k", "o")
		m.RecordSignatureFailure(context.Background(), "stripe", "invalid_signature")
		m.RecordInflightConflict(context.Background(), "k")
		m.RecordNotifyFailure(context.Background(), "smtp")
	})
}
