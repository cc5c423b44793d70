package ports

import (
	"context"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderCreated(ctx context.Context, order domain.Order) error
	PublishOrderCompleted(ctx context.Context, order domain.Order) error
	PublishOrderRefunded(ctx context.Context, order domain.Order) error
	PublishOrderCancelled(ctx context.Context, order domain.Order) error
	PublishPaymentFailed(ctx context.Context, event domain.PaymentEvent) error
}

// Notification templates understood by the mailer.
const (
	TemplateOrderConfirmation        = "order_confirmation"
	TemplateBankTransferInstructions = "bank_transfer_instructions"
	TemplateBankTransferConfirmed    = "bank_transfer_confirmed"
	TemplateRefundConfirmation       = "refund_confirmation"
)

// Notifier hands user notifications to the delivery pipeline.
// Delivery is fire-and-forget; callers only log failures.
type Notifier interface {
	Notify(ctx context.Context, userID, template string, data map[string]any) error
}
