package ports

import (
	"context"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// CheckoutRequest describes the payment intent to open with a provider.
type CheckoutRequest struct {
	OrderID       string
	UserID        string
	CourseID      string
	CourseTitle   string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
}

// CheckoutSession is the provider's answer to a checkout request.
type CheckoutSession struct {
	PaymentID     string
	RedirectURL   string
	Reference     string
	BankDetails   *domain.BankDetails
	InitialStatus domain.OrderStatus
}

// RefundRequest describes a refund of a completed order.
type RefundRequest struct {
	OrderID   string
	PaymentID string
	Amount    decimal.Decimal
	Currency  string
	Reason    string
}

// IdempotencyKey is sent to providers so a retried refund is applied once.
func (r RefundRequest) IdempotencyKey() string {
	return "refund-" + r.OrderID
}

// RefundResult reports how a refund was carried out.
type RefundResult struct {
	RefundID string
	Manual   bool
}

// PaymentProvider is implemented by every payment adapter.
type PaymentProvider interface {
	Method() domain.PaymentMethod
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// WebhookParser verifies and normalizes provider notifications.
// ParseWebhook returns a nil event for notifications that carry nothing to reconcile.
type WebhookParser interface {
	SignatureHeader() string
	ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error)
}

// Capturer finalizes an approved payment synchronously.
type Capturer interface {
	Capture(ctx context.Context, paymentID string) (*domain.PaymentEvent, error)
}

// PaymentRegistry resolves providers by method and webhook parsers by name.
type PaymentRegistry interface {
	Provider(method domain.PaymentMethod) (PaymentProvider, error)
	WebhookParser(name string) (WebhookParser, error)
}
