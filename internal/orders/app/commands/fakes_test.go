package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/adapters/memory"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments"
	"github.com/K-mel/servicemasterfr/internal/orders/app/commands"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	validSignature = "valid"
	courseID       = "course-go"
	buyerID        = "user-1"
)

var (
	buyer = domain.Principal{ID: buyerID, Role: domain.RoleUser}
	admin = domain.Principal{ID: "admin-1", Role: domain.RoleAdmin}
)

type fakeProvider struct {
	method domain.PaymentMethod

	mu            sync.Mutex
	checkoutCalls int
	refundCalls   int
	lastCheckout  ports.CheckoutRequest
	lastRefund    ports.RefundRequest

	checkoutErr  error
	refundErr    error
	refundDelay  time.Duration
	manualRefund bool
	session      ports.CheckoutSession
	captureEvent *domain.PaymentEvent
}

func newFakeProvider(method domain.PaymentMethod, session ports.CheckoutSession) *fakeProvider {
	return &fakeProvider{method: method, session: session}
}

func (p *fakeProvider) Method() domain.PaymentMethod { return p.method }

func (p *fakeProvider) CreateCheckout(_ context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkoutCalls++
	p.lastCheckout = req
	if p.checkoutErr != nil {
		return nil, p.checkoutErr
	}
	session := p.session
	if p.checkoutCalls > 1 {
		if session.PaymentID != "" {
			session.PaymentID = fmt.Sprintf("%s_%d", session.PaymentID, p.checkoutCalls)
		}
		if session.Reference != "" {
			session.Reference = fmt.Sprintf("%s-%d", session.Reference, p.checkoutCalls)
		}
	}
	return &session, nil
}

func (p *fakeProvider) Refund(ctx context.Context, req ports.RefundRequest) (*ports.RefundResult, error) {
	p.mu.Lock()
	p.refundCalls++
	p.lastRefund = req
	delay, refundErr, manual := p.refundDelay, p.refundErr, p.manualRefund
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &domain.ProviderError{Provider: p.method, Op: "refund", Retryable: true, Err: ctx.Err()}
		}
	}
	if refundErr != nil {
		return nil, refundErr
	}
	return &ports.RefundResult{RefundID: "re_1", Manual: manual}, nil
}

func (p *fakeProvider) Capture(_ context.Context, paymentID string) (*domain.PaymentEvent, error) {
	if p.captureEvent == nil {
		return nil, &domain.ProviderError{Provider: p.method, Op: "capture", Err: errors.New("nothing to capture")}
	}
	event := *p.captureEvent
	event.PaymentID = paymentID
	return &event, nil
}

func (p *fakeProvider) SignatureHeader() string { return "X-Signature" }

// ParseWebhook accepts JSON-encoded payment events signed with validSignature.
func (p *fakeProvider) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if signature != validSignature {
		return nil, domain.ErrInvalidSignature
	}
	var event domain.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if event.PaymentID == "" {
		return nil, nil
	}
	event.Provider = p.method
	return &event, nil
}

func (p *fakeProvider) counts() (checkouts, refunds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkoutCalls, p.refundCalls
}

type recordingBus struct {
	mu        sync.Mutex
	created   []string
	completed []string
	refunded  []string
	cancelled []string
	failed    []string
}

func (b *recordingBus) PublishOrderCreated(_ context.Context, o domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, o.ID)
	return nil
}

func (b *recordingBus) PublishOrderCompleted(_ context.Context, o domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, o.ID)
	return nil
}

func (b *recordingBus) PublishOrderRefunded(_ context.Context, o domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refunded = append(b.refunded, o.ID)
	return nil
}

func (b *recordingBus) PublishOrderCancelled(_ context.Context, o domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, o.ID)
	return nil
}

func (b *recordingBus) PublishPaymentFailed(_ context.Context, e domain.PaymentEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, e.PaymentID)
	return nil
}

func (b *recordingBus) completedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.completed)
}

type recordingNotifier struct {
	mu        sync.Mutex
	templates []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, template string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.templates = append(n.templates, template)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine       *commands.Engine
	orders       *memory.Repository
	entitlements *memory.EntitlementRepository
	catalog      *memory.Catalog
	card         *fakeProvider
	wallet       *fakeProvider
	bank         *fakeProvider
	events       *recordingBus
	notifier     *recordingNotifier
	clock        *testClock
}

type fixtureOption func(*commands.Dependencies)

func withOrders(repo ports.OrderRepository) fixtureOption {
	return func(d *commands.Dependencies) { d.Orders = repo }
}

func withProviderTimeout(timeout time.Duration) fixtureOption {
	return func(d *commands.Dependencies) { d.ProviderTimeout = timeout }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		orders:       memory.NewRepository(),
		entitlements: memory.NewEntitlementRepository(),
		catalog: memory.NewCatalog(domain.Course{
			ID:        courseID,
			Title:     "Go in practice",
			Price:     decimal.RequireFromString("49.00"),
			Published: true,
		}),
		card:     newFakeProvider(domain.MethodCard, ports.CheckoutSession{PaymentID: "cs_1", RedirectURL: "https://pay.test/cs_1", InitialStatus: domain.StatusPending}),
		wallet:   newFakeProvider(domain.MethodWallet, ports.CheckoutSession{PaymentID: "WO-1", RedirectURL: "https://wallet.test/approve", InitialStatus: domain.StatusPending}),
		bank:     newFakeProvider(domain.MethodBankTransfer, ports.CheckoutSession{Reference: "BT-20240101-ABCDEFGH", InitialStatus: domain.StatusAwaitingPayment, BankDetails: &domain.BankDetails{IBAN: "FR76"}}),
		events:   &recordingBus{},
		notifier: &recordingNotifier{},
		clock:    &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.bank.manualRefund = true

	deps := commands.Dependencies{
		Orders:          f.orders,
		Entitlements:    f.entitlements,
		Catalog:         f.catalog,
		Users:           memory.NewUserDirectory(domain.User{ID: buyerID, Name: "Ada", Email: "ada@example.com"}),
		Payments:        payments.NewRegistry(f.card, f.wallet, f.bank),
		Transactor:      memory.NewTransactor(),
		Events:          f.events,
		Notifier:        f.notifier,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Currency:        "eur",
		ProviderTimeout: time.Second,
		Retry:           commands.RetryConfig{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond},
		Clock:           f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.engine = commands.NewEngine(deps)
	return f
}

func (f *fixture) checkout(t *testing.T, method domain.PaymentMethod) *commands.CheckoutResult {
	t.Helper()
	result, err := f.engine.CreateCheckout(context.Background(), commands.CreateCheckoutCommand{
		Principal: buyer,
		CourseID:  courseID,
		Method:    string(method),
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) completedCardOrder(t *testing.T) domain.Order {
	t.Helper()
	result := f.checkout(t, domain.MethodCard)
	_, err := f.engine.ApplyPaymentEvent(context.Background(), successEvent(result.PaymentID))
	require.NoError(t, err)
	order, err := f.orders.GetByID(context.Background(), result.Order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, order.Status)
	return *order
}

func (f *fixture) owns(t *testing.T, userID, course string) bool {
	t.Helper()
	owned, err := f.entitlements.Has(context.Background(), userID, course)
	require.NoError(t, err)
	return owned
}

func (f *fixture) status(t *testing.T, orderID string) domain.OrderStatus {
	t.Helper()
	order, err := f.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	return order.Status
}

func successEvent(paymentID string) domain.PaymentEvent {
	return domain.PaymentEvent{
		Provider:  domain.MethodCard,
		EventID:   "evt_" + paymentID,
		PaymentID: paymentID,
		UserID:    buyerID,
		CourseID:  courseID,
		Outcome:   domain.OutcomeSucceeded,
	}
}

func webhookPayload(t *testing.T, event domain.PaymentEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func signedHeader(name string) string {
	if name == "X-Signature" {
		return validSignature
	}
	return ""
}
