package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/google/uuid"
)

const maxReconcileAttempts = 3

// HandleWebhookCommand carries a raw provider notification.
// Header looks up request headers by name.
type HandleWebhookCommand struct {
	Provider string
	Payload  []byte
	Header   func(name string) string
}

// WebhookResult tells the transport how to acknowledge a notification.
type WebhookResult struct {
	Acknowledged bool   `json:"received"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
}

// ReconcileResult describes the effect of one payment event.
type ReconcileResult struct {
	Order     *domain.Order
	Duplicate bool
	Ignored   bool
}

func (e *Engine) HandleWebhook(ctx context.Context, cmd HandleWebhookCommand) (*WebhookResult, error) {
	parser, err := e.payments.WebhookParser(cmd.Provider)
	if err != nil {
		return nil, err
	}

	signature := ""
	if cmd.Header != nil {
		signature = cmd.Header(parser.SignatureHeader())
	}

	event, err := parser.ParseWebhook(cmd.Payload, signature)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			return nil, err
		}
		e.logger.WarnContext(ctx, "acknowledging unreadable webhook",
			"provider", cmd.Provider,
			"error", err,
		)
		return &WebhookResult{Acknowledged: true}, nil
	}
	if event == nil {
		return &WebhookResult{Acknowledged: true}, nil
	}

	result, err := e.ApplyPaymentEvent(ctx, *event)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			e.logger.WarnContext(ctx, "acknowledging webhook without reconcilable payment",
				"provider", cmd.Provider,
				"event_id", event.EventID,
				"error", err,
			)
			return &WebhookResult{Acknowledged: true}, nil
		}
		return nil, err
	}

	out := &WebhookResult{Acknowledged: true, Duplicate: result.Duplicate}
	if result.Order != nil {
		out.OrderID = result.Order.ID
	}
	return out, nil
}

// ApplyPaymentEvent reconciles a normalized provider event with the order store.
// Webhooks and synchronous captures both end here.
func (e *Engine) ApplyPaymentEvent(ctx context.Context, event domain.PaymentEvent) (*ReconcileResult, error) {
	if strings.TrimSpace(event.PaymentID) == "" {
		return nil, fmt.Errorf("%w: payment event without payment id", domain.ErrValidation)
	}

	switch event.Outcome {
	case domain.OutcomeSucceeded:
		return e.applySuccess(ctx, event)
	case domain.OutcomeProcessing:
		return e.applyProcessing(ctx, event)
	case domain.OutcomeFailed:
		return e.applyFailure(ctx, event)
	default:
		return nil, fmt.Errorf("%w: unknown payment outcome %q", domain.ErrValidation, event.Outcome)
	}
}

func (e *Engine) applySuccess(ctx context.Context, event domain.PaymentEvent) (*ReconcileResult, error) {
	for range maxReconcileAttempts {
		order, err := e.orders.GetByPaymentID(ctx, event.PaymentID)
		if errors.Is(err, domain.ErrNotFound) {
			created, err := e.createFromEvent(ctx, event)
			if errors.Is(err, domain.ErrDuplicate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if created == nil {
				return &ReconcileResult{Ignored: true}, nil
			}
			return &ReconcileResult{Order: created}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find order by payment %s: %w", event.PaymentID, err)
		}

		switch order.Status {
		case domain.StatusCompleted:
			// Redelivery: re-assert access in case an earlier grant was lost.
			if err := e.granter.Grant(ctx, order.UserID, order.CourseID, order.UpdatedAt); err != nil {
				return nil, err
			}
			return &ReconcileResult{Order: order, Duplicate: true}, nil
		case domain.StatusCancelled, domain.StatusRefunded:
			e.logger.WarnContext(ctx, "payment succeeded for closed order, needs manual review",
				"order_id", order.ID,
				"payment_id", event.PaymentID,
				"status", order.Status,
			)
			return &ReconcileResult{Order: order, Ignored: true}, nil
		}

		completed, err := e.complete(ctx, *order, domain.OrderPatch{})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{Order: completed}, nil
	}

	return nil, fmt.Errorf("reconcile payment %s: %w: order kept changing", event.PaymentID, domain.ErrConflict)
}

// createFromEvent records a paid order that has no local counterpart yet.
// It returns nil when the event lacks the metadata to identify buyer and course.
func (e *Engine) createFromEvent(ctx context.Context, event domain.PaymentEvent) (*domain.Order, error) {
	if event.UserID == "" || event.CourseID == "" {
		e.logger.WarnContext(ctx, "payment without order or metadata, needs manual review",
			"payment_id", event.PaymentID,
			"provider", event.Provider,
		)
		return nil, nil
	}

	course, err := e.catalog.GetCourse(ctx, event.CourseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "payment for unknown course, needs manual review",
				"payment_id", event.PaymentID,
				"course_id", event.CourseID,
			)
			return nil, nil
		}
		return nil, fmt.Errorf("load course %s: %w", event.CourseID, err)
	}

	paymentID := event.PaymentID
	now := e.now()
	order := domain.Order{
		ID:            uuid.NewString(),
		UserID:        event.UserID,
		CourseID:      course.ID,
		Amount:        course.EffectivePrice(),
		Currency:      e.currency,
		Status:        domain.StatusCompleted,
		PaymentMethod: event.Provider,
		PaymentID:     &paymentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	err = e.granter.WithinRetriedTransaction(ctx, e.tx, order.UserID, order.CourseID, func(ctx context.Context) error {
		if err := e.orders.Create(ctx, order); err != nil {
			return err
		}
		return e.granter.grantOnce(ctx, order.UserID, order.CourseID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("record paid order for payment %s: %w", paymentID, err)
	}

	e.logger.InfoContext(ctx, "recorded order from payment notification",
		"order_id", order.ID,
		"payment_id", paymentID,
		"metadata_order_id", event.OrderID,
	)
	e.publish(ctx, "order.completed", order.ID, func(ctx context.Context) error {
		return e.events.PublishOrderCompleted(ctx, order)
	})
	return &order, nil
}

func (e *Engine) applyProcessing(ctx context.Context, event domain.PaymentEvent) (*ReconcileResult, error) {
	order, err := e.orders.GetByPaymentID(ctx, event.PaymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return &ReconcileResult{Ignored: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order by payment %s: %w", event.PaymentID, err)
	}

	if order.Status != domain.StatusPending && order.Status != domain.StatusAwaitingPayment {
		return &ReconcileResult{Order: order, Ignored: true}, nil
	}

	expected := order.Status
	updated, err := e.orders.Transition(ctx, order.ID, &expected, domain.StatusProcessing, domain.OrderPatch{})
	if errors.Is(err, domain.ErrConflict) {
		// A stronger outcome got there first.
		return &ReconcileResult{Order: order, Ignored: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mark order %s processing: %w", order.ID, err)
	}
	return &ReconcileResult{Order: updated}, nil
}

func (e *Engine) applyFailure(ctx context.Context, event domain.PaymentEvent) (*ReconcileResult, error) {
	result := &ReconcileResult{Ignored: true}

	order, err := e.orders.GetByPaymentID(ctx, event.PaymentID)
	switch {
	case err == nil:
		result.Order = order
		if event.UserID == "" {
			event.UserID = order.UserID
		}
		if event.OrderID == "" {
			event.OrderID = order.ID
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find order by payment %s: %w", event.PaymentID, err)
	}

	e.logger.InfoContext(ctx, "payment failed",
		"payment_id", event.PaymentID,
		"provider", event.Provider,
		"order_id", event.OrderID,
	)
	e.publish(ctx, "payment.failed", event.OrderID, func(ctx context.Context) error {
		return e.events.PublishPaymentFailed(ctx, event)
	})
	return result, nil
}
