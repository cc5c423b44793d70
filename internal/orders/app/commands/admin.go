package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"go.openly.dev/pointy"
)

const (
	defaultTransactionDetails = "Manually confirmed"
	defaultRefundReason       = "Refund issued by administrator"
)

// ConfirmBankTransferCommand records a bank transfer an admin has seen arrive.
type ConfirmBankTransferCommand struct {
	Principal          domain.Principal
	OrderID            string
	TransactionDetails string
}

// SetStatusCommand is an admin override restricted to state machine edges.
type SetStatusCommand struct {
	Principal domain.Principal
	OrderID   string
	Status    string
}

// RefundCommand refunds a completed order.
type RefundCommand struct {
	Principal domain.Principal
	OrderID   string
	Reason    string
}

func (e *Engine) ConfirmBankTransfer(ctx context.Context, cmd ConfirmBankTransferCommand) (*domain.Order, error) {
	if err := requireAdmin(cmd.Principal); err != nil {
		return nil, err
	}

	order, err := e.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != domain.MethodBankTransfer {
		return nil, fmt.Errorf("%w: order %s is not a bank transfer", domain.ErrValidation, order.ID)
	}

	details := strings.TrimSpace(cmd.TransactionDetails)
	if details == "" {
		details = defaultTransactionDetails
	}

	for range maxReconcileAttempts {
		switch order.Status {
		case domain.StatusCompleted:
			return order, nil
		case domain.StatusPending, domain.StatusAwaitingPayment:
		default:
			return nil, fmt.Errorf("%w: cannot confirm order in status %s", domain.ErrConflict, order.Status)
		}

		completed, err := e.complete(ctx, *order, domain.OrderPatch{TransactionDetails: pointy.String(details)})
		if errors.Is(err, domain.ErrConflict) {
			if order, err = e.loadOrder(ctx, cmd.OrderID); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		e.notify(ctx, completed.UserID, ports.TemplateBankTransferConfirmed, map[string]any{
			"order_id":            completed.ID,
			"reference":           pointy.StringValue(completed.Reference, ""),
			"transaction_details": details,
		})
		return completed, nil
	}
	return nil, fmt.Errorf("confirm order %s: %w: order kept changing", cmd.OrderID, domain.ErrConflict)
}

func (e *Engine) SetStatus(ctx context.Context, cmd SetStatusCommand) (*domain.Order, error) {
	if err := requireAdmin(cmd.Principal); err != nil {
		return nil, err
	}
	target, err := domain.ParseOrderStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	order, err := e.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == target {
		return order, nil
	}
	if target == domain.StatusRefunded {
		return nil, fmt.Errorf("%w: refunds must go through the refund operation", domain.ErrConflict)
	}
	if !domain.CanTransition(order.Status, target) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", domain.ErrConflict, order.Status, target)
	}

	if target == domain.StatusCompleted {
		return e.complete(ctx, *order, domain.OrderPatch{})
	}

	expected := order.Status
	updated, err := e.orders.Transition(ctx, order.ID, &expected, target, domain.OrderPatch{})
	if err != nil {
		return nil, fmt.Errorf("set order %s status: %w", order.ID, err)
	}
	if target == domain.StatusCancelled {
		e.publish(ctx, "order.cancelled", updated.ID, func(ctx context.Context) error {
			return e.events.PublishOrderCancelled(ctx, *updated)
		})
	}
	return updated, nil
}

func (e *Engine) Refund(ctx context.Context, cmd RefundCommand) (*domain.Order, error) {
	if err := requireAdmin(cmd.Principal); err != nil {
		return nil, err
	}

	order, err := e.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: only completed orders can be refunded, order is %s", domain.ErrConflict, order.Status)
	}

	paymentID := pointy.StringValue(order.PaymentID, "")
	if paymentID == "" && order.PaymentMethod != domain.MethodBankTransfer {
		return nil, fmt.Errorf("%w: order %s has no payment reference", domain.ErrConflict, order.ID)
	}

	provider, err := e.payments.Provider(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultRefundReason
	}

	pctx, cancel := e.withProviderTimeout(ctx)
	defer cancel()
	result, err := provider.Refund(pctx, ports.RefundRequest{
		OrderID:   order.ID,
		PaymentID: paymentID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Reason:    reason,
	})
	if err != nil {
		return nil, fmt.Errorf("refund order %s: %w", order.ID, err)
	}

	mode := domain.RefundModeProvider
	if result.Manual {
		mode = domain.RefundModeManual
	}
	refundedAt := e.now()
	expected := domain.StatusCompleted
	refunded, err := e.orders.Transition(ctx, order.ID, &expected, domain.StatusRefunded, domain.OrderPatch{
		RefundReason: pointy.String(reason),
		RefundDate:   &refundedAt,
		RefundMode:   pointy.String(mode),
	})
	if errors.Is(err, domain.ErrConflict) {
		current, lerr := e.loadOrder(ctx, order.ID)
		if lerr == nil && current.Status == domain.StatusRefunded {
			return current, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("mark order %s refunded: %w", order.ID, err)
	}

	if err := e.granter.Revoke(ctx, refunded.UserID, refunded.CourseID); err != nil {
		e.logger.ErrorContext(ctx, "failed to revoke entitlement after refund",
			"order_id", refunded.ID,
			"user_id", refunded.UserID,
			"course_id", refunded.CourseID,
			"error", err,
		)
	}

	e.publish(ctx, "order.refunded", refunded.ID, func(ctx context.Context) error {
		return e.events.PublishOrderRefunded(ctx, *refunded)
	})
	e.notify(ctx, refunded.UserID, ports.TemplateRefundConfirmation, map[string]any{
		"order_id": refunded.ID,
		"amount":   refunded.Amount.StringFixed(2),
		"currency": refunded.Currency,
		"reason":   reason,
		"manual":   result.Manual,
	})
	return refunded, nil
}

func (e *Engine) loadOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: order_id is required", domain.ErrValidation)
	}
	order, err := e.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return order, nil
}
