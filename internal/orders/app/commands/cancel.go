package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

// CancelOrderCommand abandons an unpaid order.
type CancelOrderCommand struct {
	Principal domain.Principal
	OrderID   string
}

func (e *Engine) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error) {
	if err := requireAuthenticated(cmd.Principal); err != nil {
		return nil, err
	}

	order, err := e.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !cmd.Principal.CanAccess(*order) {
		return nil, fmt.Errorf("%w: order belongs to another user", domain.ErrUnauthorized)
	}

	for range maxReconcileAttempts {
		switch order.Status {
		case domain.StatusCancelled:
			return order, nil
		case domain.StatusCompleted, domain.StatusRefunded:
			return nil, fmt.Errorf("%w: cannot cancel order in status %s", domain.ErrConflict, order.Status)
		}

		cancelled, err := e.cancel(ctx, *order)
		if errors.Is(err, domain.ErrConflict) {
			if order, err = e.loadOrder(ctx, cmd.OrderID); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return cancelled, nil
	}
	return nil, fmt.Errorf("cancel order %s: %w: order kept changing", cmd.OrderID, domain.ErrConflict)
}

func (e *Engine) cancel(ctx context.Context, order domain.Order) (*domain.Order, error) {
	expected := order.Status
	cancelled, err := e.orders.Transition(ctx, order.ID, &expected, domain.StatusCancelled, domain.OrderPatch{})
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	e.publish(ctx, "order.cancelled", cancelled.ID, func(ctx context.Context) error {
		return e.events.PublishOrderCancelled(ctx, *cancelled)
	})
	return cancelled, nil
}

// ExpireStaleOrdersCommand cancels card and wallet orders left unpaid for longer than OlderThan.
// Bank transfers are exempt since they are settled by hand.
type ExpireStaleOrdersCommand struct {
	OlderThan time.Duration
}

func (e *Engine) ExpireStaleOrders(ctx context.Context, cmd ExpireStaleOrdersCommand) (int, error) {
	if cmd.OlderThan <= 0 {
		return 0, fmt.Errorf("%w: expiry age must be positive", domain.ErrValidation)
	}

	cutoff := e.now().Add(-cmd.OlderThan)
	stale, err := e.orders.ListStalePending(ctx, cutoff, []domain.PaymentMethod{domain.MethodCard, domain.MethodWallet})
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	expired := 0
	for _, order := range stale {
		if _, err := e.cancel(ctx, order); err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				e.logger.WarnContext(ctx, "failed to expire order", "order_id", order.ID, "error", err)
			}
			continue
		}
		expired++
	}
	return expired, nil
}
