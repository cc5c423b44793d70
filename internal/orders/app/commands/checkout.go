package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/google/uuid"
	"go.openly.dev/pointy"
)

// CreateCheckoutCommand starts the purchase of a course.
// The price always comes from the catalog.
type CreateCheckoutCommand struct {
	Principal domain.Principal
	CourseID  string
	Method    string
}

func (c CreateCheckoutCommand) Validate() error {
	if err := requireAuthenticated(c.Principal); err != nil {
		return err
	}
	if strings.TrimSpace(c.CourseID) == "" {
		return fmt.Errorf("%w: course_id is required", domain.ErrValidation)
	}
	if _, err := domain.ParsePaymentMethod(c.Method); err != nil {
		return err
	}
	return nil
}

// CheckoutResult is what the client needs to complete the payment out of band.
type CheckoutResult struct {
	Order       domain.Order        `json:"order"`
	PaymentID   string              `json:"payment_id,omitempty"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	Reference   string              `json:"reference,omitempty"`
	BankDetails *domain.BankDetails `json:"bank_details,omitempty"`
}

func (e *Engine) CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (*CheckoutResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	method, _ := domain.ParsePaymentMethod(cmd.Method)
	userID := cmd.Principal.ID

	course, err := e.catalog.GetCourse(ctx, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("load course %s: %w", cmd.CourseID, err)
	}
	if !course.Published {
		return nil, fmt.Errorf("course %s: %w", cmd.CourseID, domain.ErrNotFound)
	}

	owned, err := e.entitlements.Has(ctx, userID, course.ID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement: %w", err)
	}
	if owned {
		return nil, fmt.Errorf("%w: course %s already owned", domain.ErrConflict, course.ID)
	}

	provider, err := e.payments.Provider(method)
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	amount := course.EffectivePrice()

	pctx, cancel := e.withProviderTimeout(ctx)
	defer cancel()
	session, err := provider.CreateCheckout(pctx, ports.CheckoutRequest{
		OrderID:       orderID,
		UserID:        userID,
		CourseID:      course.ID,
		CourseTitle:   course.Title,
		CustomerEmail: e.customerEmail(ctx, userID),
		Amount:        amount,
		Currency:      e.currency,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	status := session.InitialStatus
	if status == "" {
		status = domain.StatusPending
	}

	now := e.now()
	order := domain.Order{
		ID:            orderID,
		UserID:        userID,
		CourseID:      course.ID,
		Amount:        amount,
		Currency:      e.currency,
		Status:        status,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if session.PaymentID != "" {
		order.PaymentID = pointy.String(session.PaymentID)
	}
	if session.Reference != "" {
		order.Reference = pointy.String(session.Reference)
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := e.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	e.publish(ctx, "order.created", order.ID, func(ctx context.Context) error {
		return e.events.PublishOrderCreated(ctx, order)
	})
	if method == domain.MethodBankTransfer {
		data := map[string]any{
			"order_id":  order.ID,
			"reference": session.Reference,
			"amount":    order.Amount.StringFixed(2),
			"currency":  order.Currency,
		}
		if session.BankDetails != nil {
			data["bank_details"] = *session.BankDetails
		}
		e.notify(ctx, userID, ports.TemplateBankTransferInstructions, data)
	}

	return &CheckoutResult{
		Order:       order,
		PaymentID:   session.PaymentID,
		RedirectURL: session.RedirectURL,
		Reference:   session.Reference,
		BankDetails: session.BankDetails,
	}, nil
}

func (e *Engine) customerEmail(ctx context.Context, userID string) string {
	if e.users == nil {
		return ""
	}
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "failed to load customer", "user_id", userID, "error", err)
		}
		return ""
	}
	return user.Email
}
