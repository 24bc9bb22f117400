package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordWebhookDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordWebhookDelivery("200", "processed", 20*time.Millisecond)
	m.RecordWebhookDelivery("200", "processed", 30*time.Millisecond)
	m.RecordWebhookDelivery("400", "", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookDeliveries.WithLabelValues("200", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookDeliveries.WithLabelValues("400", "unknown")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.webhookDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookDelivery("200", "processed", time.Millisecond)
	m.ObserveAPIRequest("GET", "/health", "200", time.Millisecond)
}
