package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

// CaptureWalletPaymentCommand finalizes a wallet payment the buyer has approved.
type CaptureWalletPaymentCommand struct {
	Principal domain.Principal
	PaymentID string
}

func (c CaptureWalletPaymentCommand) Validate() error {
	if err := requireAuthenticated(c.Principal); err != nil {
		return err
	}
	if strings.TrimSpace(c.PaymentID) == "" {
		return fmt.Errorf("%w: payment_id is required", domain.ErrValidation)
	}
	return nil
}

func (e *Engine) CaptureWalletPayment(ctx context.Context, cmd CaptureWalletPaymentCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := e.orders.GetByPaymentID(ctx, cmd.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("find order by payment %s: %w", cmd.PaymentID, err)
	}
	if !cmd.Principal.CanAccess(*order) {
		return nil, fmt.Errorf("%w: order belongs to another user", domain.ErrUnauthorized)
	}
	if order.PaymentMethod != domain.MethodWallet {
		return nil, fmt.Errorf("%w: order %s is not a wallet payment", domain.ErrValidation, order.ID)
	}
	if order.Status == domain.StatusCompleted {
		return order, nil
	}
	if order.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrConflict, order.ID, order.Status)
	}

	provider, err := e.payments.Provider(domain.MethodWallet)
	if err != nil {
		return nil, err
	}
	capturer, ok := provider.(ports.Capturer)
	if !ok {
		return nil, fmt.Errorf("%w: wallet provider cannot capture", domain.ErrValidation)
	}

	pctx, cancel := e.withProviderTimeout(ctx)
	defer cancel()
	event, err := capturer.Capture(pctx, cmd.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("capture payment: %w", err)
	}

	if event.UserID == "" {
		event.UserID = order.UserID
	}
	if event.CourseID == "" {
		event.CourseID = order.CourseID
	}
	if event.OrderID == "" {
		event.OrderID = order.ID
	}

	result, err := e.ApplyPaymentEvent(ctx, *event)
	if err != nil {
		return nil, err
	}
	if event.Outcome == domain.OutcomeFailed {
		return nil, &domain.ProviderError{
			Provider: domain.MethodWallet,
			Op:       "capture",
			Err:      errors.New("payment was declined"),
		}
	}
	if result.Order != nil {
		return result.Order, nil
	}
	return e.orders.GetByID(ctx, order.ID)
}
