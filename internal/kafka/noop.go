package kafka

import (
	"context"
	"log/slog"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

// NoopEventBus logs events without sending them to Kafka. Used when no brokers are configured.
type NoopEventBus struct {
	logger *slog.Logger
}

func NewNoopEventBus(logger *slog.Logger) *NoopEventBus {
	return &NoopEventBus{logger: logger}
}

func (n *NoopEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	n.log(ctx, TopicOrderCreated, order)
	return nil
}

func (n *NoopEventBus) PublishOrderCompleted(ctx context.Context, order domain.Order) error {
	n.log(ctx, TopicOrderCompleted, order)
	return nil
}

func (n *NoopEventBus) PublishOrderRefunded(ctx context.Context, order domain.Order) error {
	n.log(ctx, TopicOrderRefunded, order)
	return nil
}

func (n *NoopEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	n.log(ctx, TopicOrderCancelled, order)
	return nil
}

func (n *NoopEventBus) PublishPaymentFailed(ctx context.Context, event domain.PaymentEvent) error {
	n.logger.DebugContext(ctx, "event::"+TopicPaymentFailed,
		"payment_id", event.PaymentID,
		"provider", event.Provider,
		"order_id", event.OrderID,
	)
	return nil
}

func (n *NoopEventBus) log(ctx context.Context, eventType string, order domain.Order) {
	n.logger.DebugContext(ctx, "event::"+eventType,
		"order_id", order.ID,
		"status", order.Status,
	)
}

// NoopNotifier logs notifications instead of queueing them.
type NoopNotifier struct {
	logger *slog.Logger
}

func NewNoopNotifier(logger *slog.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

func (n *NoopNotifier) Notify(ctx context.Context, userID, template string, _ map[string]any) error {
	n.logger.InfoContext(ctx, "notification skipped, no broker configured",
		"user_id", userID,
		"template", template,
	)
	return nil
}
