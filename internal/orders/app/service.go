package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/app/commands"
	"github.com/K-mel/servicemasterfr/internal/orders/app/queries"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/metrics"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

// Store groups the persistence ports the service needs.
type Store interface {
	ports.OrderRepository
	ports.StatisticsReader
}

// Config carries the service settings that come from configuration.
type Config struct {
	Currency        string
	ProviderTimeout time.Duration
	Retry           commands.RetryConfig
}

// Service bundles use cases for purchasing courses and reconciling payments.
type Service struct {
	commands     commands.Executor
	getOrder     *queries.GetOrderQueryHandler
	listOrders   *queries.ListOrdersQueryHandler
	invoice      *queries.GetInvoiceQueryHandler
	statistics   *queries.StatisticsQueryHandler
	ownedCourses *queries.OwnedCoursesQueryHandler
	idemStore    ports.IdempotencyStore
}

// Dependencies lists the adapters the service is wired with.
type Dependencies struct {
	Orders       Store
	Entitlements ports.EntitlementRepository
	Catalog      ports.Catalog
	Users        ports.UserDirectory
	Payments     ports.PaymentRegistry
	Transactor   ports.Transactor
	Events       ports.EventBus
	Notifier     ports.Notifier
	Idempotency  ports.IdempotencyStore
}

// NewService wires required dependencies.
func NewService(deps Dependencies, cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Service {
	engine := commands.NewEngine(commands.Dependencies{
		Orders:          deps.Orders,
		Entitlements:    deps.Entitlements,
		Catalog:         deps.Catalog,
		Users:           deps.Users,
		Payments:        deps.Payments,
		Transactor:      deps.Transactor,
		Events:          deps.Events,
		Notifier:        deps.Notifier,
		Logger:          logger,
		Currency:        cfg.Currency,
		ProviderTimeout: cfg.ProviderTimeout,
		Retry:           cfg.Retry,
	})

	return &Service{
		commands:     commands.NewObservableExecutor(engine, logger, metrics),
		getOrder:     queries.NewGetOrderQueryHandler(deps.Orders),
		listOrders:   queries.NewListOrdersQueryHandler(deps.Orders),
		invoice:      queries.NewGetInvoiceQueryHandler(deps.Orders, deps.Catalog, deps.Users),
		statistics:   queries.NewStatisticsQueryHandler(deps.Orders, deps.Catalog, deps.Users),
		ownedCourses: queries.NewOwnedCoursesQueryHandler(deps.Entitlements),
		idemStore:    deps.Idempotency,
	}
}

// CreateCheckout opens a payment with the chosen provider and records the order.
func (s *Service) CreateCheckout(ctx context.Context, principal domain.Principal, courseID, method string) (*commands.CheckoutResult, error) {
	return s.commands.CreateCheckout(ctx, commands.CreateCheckoutCommand{
		Principal: principal,
		CourseID:  courseID,
		Method:    method,
	})
}

// HandleWebhook verifies and reconciles a provider notification.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, header func(string) string) (*commands.WebhookResult, error) {
	return s.commands.HandleWebhook(ctx, commands.HandleWebhookCommand{
		Provider: provider,
		Payload:  payload,
		Header:   header,
	})
}

// CaptureWalletPayment completes an approved wallet payment.
func (s *Service) CaptureWalletPayment(ctx context.Context, principal domain.Principal, paymentID string) (*domain.Order, error) {
	return s.commands.CaptureWalletPayment(ctx, commands.CaptureWalletPaymentCommand{
		Principal: principal,
		PaymentID: paymentID,
	})
}

// ConfirmBankTransfer completes a bank transfer order after an admin has verified the funds.
func (s *Service) ConfirmBankTransfer(ctx context.Context, principal domain.Principal, orderID, details string) (*domain.Order, error) {
	return s.commands.ConfirmBankTransfer(ctx, commands.ConfirmBankTransferCommand{
		Principal:          principal,
		OrderID:            orderID,
		TransactionDetails: details,
	})
}

// SetStatus applies an admin status override.
func (s *Service) SetStatus(ctx context.Context, principal domain.Principal, orderID, status string) (*domain.Order, error) {
	return s.commands.SetStatus(ctx, commands.SetStatusCommand{
		Principal: principal,
		OrderID:   orderID,
		Status:    status,
	})
}

// Refund refunds a completed order.
func (s *Service) Refund(ctx context.Context, principal domain.Principal, orderID, reason string) (*domain.Order, error) {
	return s.commands.Refund(ctx, commands.RefundCommand{
		Principal: principal,
		OrderID:   orderID,
		Reason:    reason,
	})
}

// CancelOrder cancels an unpaid order.
func (s *Service) CancelOrder(ctx context.Context, principal domain.Principal, orderID string) (*domain.Order, error) {
	return s.commands.CancelOrder(ctx, commands.CancelOrderCommand{
		Principal: principal,
		OrderID:   orderID,
	})
}

// ExpireStaleOrders cancels unpaid card and wallet orders older than olderThan.
func (s *Service) ExpireStaleOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.commands.ExpireStaleOrders(ctx, commands.ExpireStaleOrdersCommand{OlderThan: olderThan})
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, principal domain.Principal, id string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{Principal: principal, OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, principal domain.Principal, filter ports.ListFilter) (ports.OrderPage, error) {
	return s.listOrders.Handle(ctx, queries.ListOrdersQuery{Principal: principal, Filter: filter})
}

// GetInvoice builds the invoice of an order.
func (s *Service) GetInvoice(ctx context.Context, principal domain.Principal, id string) (*queries.Invoice, error) {
	return s.invoice.Handle(ctx, queries.GetOrderQuery{Principal: principal, OrderID: id})
}

// Statistics aggregates completed sales.
func (s *Service) Statistics(ctx context.Context, principal domain.Principal, period string) (*queries.Statistics, error) {
	return s.statistics.Handle(ctx, queries.StatisticsQuery{Principal: principal, Period: period})
}

// OwnedCourses lists the caller's entitlements.
func (s *Service) OwnedCourses(ctx context.Context, principal domain.Principal) ([]domain.Entitlement, error) {
	return s.ownedCourses.Handle(ctx, principal)
}

// ReserveIdempotencyKey claims key for one in-flight request.
func (s *Service) ReserveIdempotencyKey(ctx context.Context, key string) (bool, error) {
	return s.idemStore.Reserve(ctx, key)
}

// ReleaseIdempotencyKey frees a reservation whose request failed.
func (s *Service) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.idemStore.Release(ctx, key)
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
