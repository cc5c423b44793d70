package kafka

import (
	"context"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCompleted = "order.completed"
	TopicOrderRefunded  = "order.refunded"
	TopicOrderCancelled = "order.cancelled"
	TopicPaymentFailed  = "payment.failed"
	TopicNotifications  = "notifications"
)

// OrderEvent is the message published on every order lifecycle topic.
type OrderEvent struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	CourseID      string          `json:"course_id"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	RefundReason  *string         `json:"refund_reason,omitempty"`
	RefundMode    *string         `json:"refund_mode,omitempty"`
}

// PaymentFailedEvent reports a declined or failed provider payment.
type PaymentFailedEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Provider   string    `json:"provider"`
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
}

// EventBus publishes order lifecycle events, keyed by order id so each order's
// events stay ordered within a partition.
type EventBus struct {
	producer *Producer
	cfg      Config
	now      func() time.Time
}

func NewEventBus(producer *Producer, cfg Config) *EventBus {
	return &EventBus{producer: producer, cfg: cfg, now: time.Now}
}

func (b *EventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return b.publishOrder(ctx, TopicOrderCreated, order)
}

func (b *EventBus) PublishOrderCompleted(ctx context.Context, order domain.Order) error {
	return b.publishOrder(ctx, TopicOrderCompleted, order)
}

func (b *EventBus) PublishOrderRefunded(ctx context.Context, order domain.Order) error {
	return b.publishOrder(ctx, TopicOrderRefunded, order)
}

func (b *EventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	return b.publishOrder(ctx, TopicOrderCancelled, order)
}

func (b *EventBus) PublishPaymentFailed(ctx context.Context, event domain.PaymentEvent) error {
	key := event.OrderID
	if key == "" {
		key = event.PaymentID
	}
	return b.producer.Send(ctx, b.cfg.Topic(TopicPaymentFailed), key, PaymentFailedEvent{
		EventID:    uuid.NewString(),
		Type:       TopicPaymentFailed,
		OccurredAt: b.now().UTC(),
		Provider:   string(event.Provider),
		PaymentID:  event.PaymentID,
		OrderID:    event.OrderID,
		UserID:     event.UserID,
	})
}

func (b *EventBus) publishOrder(ctx context.Context, eventType string, order domain.Order) error {
	return b.producer.Send(ctx, b.cfg.Topic(eventType), order.ID, OrderEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		OccurredAt:    b.now().UTC(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		CourseID:      order.CourseID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Amount:        order.Amount,
		Currency:      order.Currency,
		RefundReason:  order.RefundReason,
		RefundMode:    order.RefundMode,
	})
}
