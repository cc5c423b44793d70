package kafka

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	publishLatency  metric.Float64Histogram
	deliveryLatency metric.Float64Histogram
	deliveries      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.publishLatency, err = meter.Float64Histogram(
		"kafka_publish_duration_seconds",
		metric.WithDescription("Time to hand an event to the producer"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_publish_duration histogram: %w", err)
	}

	m.deliveryLatency, err = meter.Float64Histogram(
		"kafka_producer_latency_seconds",
		metric.WithDescription("Time from queueing a message to its broker acknowledgement"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_producer_latency histogram: %w", err)
	}

	m.deliveries, err = meter.Int64Counter(
		"kafka_messages_total",
		metric.WithDescription("Messages acknowledged or rejected by the brokers"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_messages counter: %w", err)
	}

	return m, nil
}

// RecordPublish records how long handing eventType to the bus took.
func (m *Metrics) RecordPublish(ctx context.Context, eventType string, durationSeconds float64, success bool) {
	m.publishLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status(success)),
	))
}

// RecordDelivery records the broker outcome for a message on topic.
func (m *Metrics) RecordDelivery(ctx context.Context, topic string, durationSeconds float64, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("status", status(success)),
	)
	m.deliveryLatency.Record(ctx, durationSeconds, attrs)
	m.deliveries.Add(ctx, 1, attrs)
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
