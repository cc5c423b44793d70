package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	commandDuration metric.Float64Histogram
	checkoutsTotal  metric.Int64Counter
	paymentEvents   metric.Int64Counter
	refundsTotal    metric.Int64Counter
	ordersExpired   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.commandDuration, err = meter.Float64Histogram(
		"order_command_duration_seconds",
		metric.WithDescription("Duration of order commands"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_command_duration histogram: %w", err)
	}

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkouts_created_total",
		metric.WithDescription("Total number of checkout attempts"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts_created_total counter: %w", err)
	}

	m.paymentEvents, err = meter.Int64Counter(
		"payment_events_total",
		metric.WithDescription("Payment events reconciled by outcome and effect"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_events_total counter: %w", err)
	}

	m.refundsTotal, err = meter.Int64Counter(
		"order_refunds_total",
		metric.WithDescription("Total number of refund attempts"),
		metric.WithUnit("{refund}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_refunds_total counter: %w", err)
	}

	m.ordersExpired, err = meter.Int64Counter(
		"orders_expired_total",
		metric.WithDescription("Unpaid orders cancelled by the sweeper"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_expired_total counter: %w", err)
	}

	return m, nil
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *Metrics) RecordCommand(ctx context.Context, command string, durationSeconds float64, success bool) {
	m.commandDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordCheckout(ctx context.Context, method string, success bool) {
	m.checkoutsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", method),
		attribute.String("status", statusLabel(success)),
	))
}

// RecordPaymentEvent counts a reconciled event. effect is one of applied, duplicate, ignored or error.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, outcome, effect string) {
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
		attribute.String("effect", effect),
	))
}

func (m *Metrics) RecordRefund(ctx context.Context, method string, success bool) {
	m.refundsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", method),
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordOrdersExpired(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.ordersExpired.Add(ctx, int64(count))
}
