package adapters

import (
	"context"
	"time"

	"github.com/K-mel/servicemasterfr/internal/kafka"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/K-mel/servicemasterfr/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return e.publishOrder(ctx, "EventBus.PublishOrderCreated", kafka.TopicOrderCreated, order, e.bus.PublishOrderCreated)
}

func (e *ObservableEventBus) PublishOrderCompleted(ctx context.Context, order domain.Order) error {
	return e.publishOrder(ctx, "EventBus.PublishOrderCompleted", kafka.TopicOrderCompleted, order, e.bus.PublishOrderCompleted)
}

func (e *ObservableEventBus) PublishOrderRefunded(ctx context.Context, order domain.Order) error {
	return e.publishOrder(ctx, "EventBus.PublishOrderRefunded", kafka.TopicOrderRefunded, order, e.bus.PublishOrderRefunded)
}

func (e *ObservableEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	return e.publishOrder(ctx, "EventBus.PublishOrderCancelled", kafka.TopicOrderCancelled, order, e.bus.PublishOrderCancelled)
}

func (e *ObservableEventBus) PublishPaymentFailed(ctx context.Context, event domain.PaymentEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishPaymentFailed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("payment.id", event.PaymentID),
		attribute.String("payment.provider", string(event.Provider)),
		attribute.String("event.type", kafka.TopicPaymentFailed),
	)

	start := time.Now()
	err := e.bus.PublishPaymentFailed(ctx, event)
	e.metrics.RecordPublish(ctx, kafka.TopicPaymentFailed, time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) publishOrder(
	ctx context.Context,
	spanName, eventType string,
	order domain.Order,
	publish func(context.Context, domain.Order) error,
) error {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
		attribute.String("event.type", eventType),
	)

	start := time.Now()
	err := publish(ctx, order)
	e.metrics.RecordPublish(ctx, eventType, time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
