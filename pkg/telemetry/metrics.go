package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the Prometheus series scraped from /metrics.
type Metrics struct {
	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	webhookDeliveries *prometheus.CounterVec
	webhookDuration   *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subsync_api_requests_total",
		Help: "Counts HTTP requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subsync_api_duration_seconds",
		Help:    "HTTP request latency per method/route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subsync_webhook_deliveries_total",
		Help: "Inbound webhook deliveries by HTTP status and outcome.",
	}, []string{"status", "outcome"})

	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subsync_webhook_duration_seconds",
		Help:    "Inbound webhook processing latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"outcome"})

	reg.MustRegister(
		apiRequests,
		apiDuration,
		webhookDeliveries,
		webhookDuration,
	)

	return &Metrics{
		apiRequests:       apiRequests,
		apiDuration:       apiDuration,
		webhookDeliveries: webhookDeliveries,
		webhookDuration:   webhookDuration,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, status).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordWebhookDelivery records webhook delivery metrics.
func (m *Metrics) RecordWebhookDelivery(status, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	outcomeLabel := sanitizeLabel(outcome)
	m.webhookDeliveries.WithLabelValues(sanitizeLabel(status), outcomeLabel).Inc()
	m.webhookDuration.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
