package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusAwaitingPayment OrderStatus = "awaiting_payment"
	StatusProcessing      OrderStatus = "processing"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRefunded        OrderStatus = "refunded"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusAwaitingPayment, StatusProcessing, StatusCompleted, StatusCancelled},
	StatusAwaitingPayment: {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing:      {StatusCompleted, StatusCancelled},
	StatusCompleted:       {StatusRefunded},
}

// ParseOrderStatus converts user input into a known status.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, raw)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAwaitingPayment, StatusProcessing,
		StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further payment progress is possible.
// Completed orders can still be refunded but never re-enter the payment flow.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod identifies the provider used to pay an order.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodWallet       PaymentMethod = "wallet"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// ParsePaymentMethod converts user input into a supported payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch method {
	case MethodCard, MethodWallet, MethodBankTransfer:
		return method, nil
	default:
		return "", fmt.Errorf("%w: unsupported payment method %q", ErrValidation, raw)
	}
}

// Refund modes recorded on refunded orders.
const (
	RefundModeProvider = "provider"
	RefundModeManual   = "manual"
)

// Order represents one purchase attempt of a course by a user.
type Order struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	CourseID           string          `json:"course_id"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             OrderStatus     `json:"status"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	PaymentID          *string         `json:"payment_id,omitempty"`
	Reference          *string         `json:"reference,omitempty"`
	TransactionDetails *string         `json:"transaction_details,omitempty"`
	RefundReason       *string         `json:"refund_reason,omitempty"`
	RefundDate         *time.Time      `json:"refund_date,omitempty"`
	RefundMode         *string         `json:"refund_mode,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(o.CourseID) == "" {
		return fmt.Errorf("%w: course_id is required", ErrValidation)
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if _, err := ParsePaymentMethod(string(o.PaymentMethod)); err != nil {
		return err
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrValidation, o.Status)
	}
	return nil
}

// IsTerminal indicates whether the order is in a terminal state.
func (o Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// OwnedBy reports whether the order belongs to userID.
func (o Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// OrderPatch carries write-once audit fields applied along with a transition.
// Nil fields leave the stored value untouched.
type OrderPatch struct {
	TransactionDetails *string
	RefundReason       *string
	RefundDate         *time.Time
	RefundMode         *string
}

// Apply copies non-nil patch fields onto o unless they are already set.
func (p OrderPatch) Apply(o *Order) {
	if o.TransactionDetails == nil && p.TransactionDetails != nil {
		o.TransactionDetails = p.TransactionDetails
	}
	if o.RefundReason == nil && p.RefundReason != nil {
		o.RefundReason = p.RefundReason
	}
	if o.RefundDate == nil && p.RefundDate != nil {
		o.RefundDate = p.RefundDate
	}
	if o.RefundMode == nil && p.RefundMode != nil {
		o.RefundMode = p.RefundMode
	}
}
