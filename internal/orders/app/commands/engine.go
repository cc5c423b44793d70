package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

const defaultProviderTimeout = 10 * time.Second

// Executor is the full set of order commands.
type Executor interface {
	CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (*CheckoutResult, error)
	HandleWebhook(ctx context.Context, cmd HandleWebhookCommand) (*WebhookResult, error)
	ApplyPaymentEvent(ctx context.Context, event domain.PaymentEvent) (*ReconcileResult, error)
	CaptureWalletPayment(ctx context.Context, cmd CaptureWalletPaymentCommand) (*domain.Order, error)
	ConfirmBankTransfer(ctx context.Context, cmd ConfirmBankTransferCommand) (*domain.Order, error)
	SetStatus(ctx context.Context, cmd SetStatusCommand) (*domain.Order, error)
	Refund(ctx context.Context, cmd RefundCommand) (*domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error)
	ExpireStaleOrders(ctx context.Context, cmd ExpireStaleOrdersCommand) (int, error)
}

// Dependencies are the collaborators of the Engine.
type Dependencies struct {
	Orders          ports.OrderRepository
	Entitlements    ports.EntitlementRepository
	Catalog         ports.Catalog
	Users           ports.UserDirectory
	Payments        ports.PaymentRegistry
	Transactor      ports.Transactor
	Events          ports.EventBus
	Notifier        ports.Notifier
	Logger          *slog.Logger
	Currency        string
	ProviderTimeout time.Duration
	Retry           RetryConfig
	Clock           func() time.Time
}

// Engine reconciles payments against orders and drives the order state machine.
type Engine struct {
	orders          ports.OrderRepository
	entitlements    ports.EntitlementRepository
	granter         *EntitlementGranter
	catalog         ports.Catalog
	users           ports.UserDirectory
	payments        ports.PaymentRegistry
	tx              ports.Transactor
	events          ports.EventBus
	notifier        ports.Notifier
	logger          *slog.Logger
	currency        string
	providerTimeout time.Duration
	now             func() time.Time
}

func NewEngine(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	currency := deps.Currency
	if currency == "" {
		currency = "eur"
	}

	return &Engine{
		orders:          deps.Orders,
		entitlements:    deps.Entitlements,
		granter:         NewEntitlementGranter(deps.Entitlements, logger, deps.Retry),
		catalog:         deps.Catalog,
		users:           deps.Users,
		payments:        deps.Payments,
		tx:              deps.Transactor,
		events:          deps.Events,
		notifier:        deps.Notifier,
		logger:          logger,
		currency:        currency,
		providerTimeout: timeout,
		now:             clock,
	}
}

// complete moves order to completed and grants the entitlement in one unit of work.
func (e *Engine) complete(ctx context.Context, order domain.Order, patch domain.OrderPatch) (*domain.Order, error) {
	var completed *domain.Order
	err := e.granter.WithinRetriedTransaction(ctx, e.tx, order.UserID, order.CourseID, func(ctx context.Context) error {
		expected := order.Status
		updated, err := e.orders.Transition(ctx, order.ID, &expected, domain.StatusCompleted, patch)
		if err != nil {
			return err
		}
		if err := e.granter.grantOnce(ctx, updated.UserID, updated.CourseID, updated.UpdatedAt); err != nil {
			return err
		}
		completed = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete order %s: %w", order.ID, err)
	}

	e.publish(ctx, "order.completed", completed.ID, func(ctx context.Context) error {
		return e.events.PublishOrderCompleted(ctx, *completed)
	})
	e.notify(ctx, completed.UserID, ports.TemplateOrderConfirmation, map[string]any{
		"order_id":  completed.ID,
		"course_id": completed.CourseID,
		"amount":    completed.Amount.StringFixed(2),
		"currency":  completed.Currency,
	})
	return completed, nil
}

func (e *Engine) publish(ctx context.Context, eventType, orderID string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		e.logger.WarnContext(ctx, "failed to publish order event",
			"event_type", eventType,
			"order_id", orderID,
			"error", err,
		)
	}
}

func (e *Engine) notify(ctx context.Context, userID, template string, data map[string]any) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, userID, template, data); err != nil {
		e.logger.WarnContext(ctx, "failed to queue notification",
			"template", template,
			"user_id", userID,
			"error", err,
		)
	}
}

func (e *Engine) withProviderTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.providerTimeout)
}

func requireAuthenticated(p domain.Principal) error {
	if !p.Authenticated() {
		return domain.ErrUnauthenticated
	}
	return nil
}

func requireAdmin(p domain.Principal) error {
	if err := requireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return fmt.Errorf("%w: admin role required", domain.ErrUnauthorized)
	}
	return nil
}
