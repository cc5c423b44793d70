package http

import (
	"errors"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	webhookProcessed        = "processed"
	webhookDuplicate        = "duplicate"
	webhookRejected         = "rejected"
	webhookInvalidSignature = "invalid_signature"
	webhookUnknownProvider  = "unknown_provider"
	webhookFailed           = "failed"
)

var (
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_deliveries_total",
			Help: "Number of payment provider webhook deliveries by outcome",
		},
		[]string{"provider", "outcome"},
	)

	WebhookFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_webhook_failures_total",
			Help: "Number of webhook deliveries answered with a server error",
		},
	)
)

// RegisterWebhookMetrics registers the webhook collectors with the default Prometheus registry.
func RegisterWebhookMetrics() {
	prometheus.MustRegister(WebhookDeliveries, WebhookFailures)
}

func recordWebhook(provider, outcome string) {
	// Unknown names come straight from the URL and would grow the label set unbounded.
	if outcome == webhookUnknownProvider {
		provider = "unknown"
	}
	WebhookDeliveries.WithLabelValues(provider, outcome).Inc()
	if outcome == webhookFailed {
		WebhookFailures.Inc()
	}
}

func webhookOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return webhookInvalidSignature
	case errors.Is(err, domain.ErrNotFound):
		return webhookUnknownProvider
	case errors.Is(err, domain.ErrValidation):
		return webhookRejected
	default:
		return webhookFailed
	}
}
