package commands_test

import (
	"context"
	"testing"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/app/commands"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	id := pendingOrder(t, f)

	order, err := f.engine.CancelOrder(context.Background(), commands.CancelOrderCommand{Principal: buyer, OrderID: id})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, order.Status)
	assert.Equal(t, []string{id}, f.events.cancelled)

	again, err := f.engine.CancelOrder(context.Background(), commands.CancelOrderCommand{Principal: buyer, OrderID: id})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, again.Status)
	assert.Len(t, f.events.cancelled, 1)
}

func TestCancelOrderRejections(t *testing.T) {
	f := newFixture(t)
	pending := pendingOrder(t, f)
	stranger := domain.Principal{ID: "user-2", Role: domain.RoleUser}

	_, err := f.engine.CancelOrder(context.Background(), commands.CancelOrderCommand{Principal: stranger, OrderID: pending})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.engine.CancelOrder(context.Background(), commands.CancelOrderCommand{OrderID: pending})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	completed := completedOrder(t, f)
	_, err = f.engine.CancelOrder(context.Background(), commands.CancelOrderCommand{Principal: buyer, OrderID: completed})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestExpireStaleOrders(t *testing.T) {
	f := newFixture(t)
	stale := pendingOrder(t, f)
	bank := f.checkout(t, domain.MethodBankTransfer).Order.ID

	f.clock.Advance(2 * time.Hour)
	f.catalog.Put(domain.Course{ID: "course-rust", Title: "Rust", Price: decimal.NewFromInt(30), Published: true})
	fresh, err := f.engine.CreateCheckout(context.Background(), commands.CreateCheckoutCommand{
		Principal: buyer,
		CourseID:  "course-rust",
		Method:    "wallet",
	})
	require.NoError(t, err)

	expired, err := f.engine.ExpireStaleOrders(context.Background(), commands.ExpireStaleOrdersCommand{OlderThan: time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, domain.StatusCancelled, f.status(t, stale))
	assert.Equal(t, domain.StatusAwaitingPayment, f.status(t, bank))
	assert.Equal(t, domain.StatusPending, f.status(t, fresh.Order.ID))
}

func TestExpireStaleOrdersRequiresPositiveAge(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ExpireStaleOrders(context.Background(), commands.ExpireStaleOrdersCommand{})

	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCaptureWalletPayment(t *testing.T) {
	f := newFixture(t)
	checkout := f.checkout(t, domain.MethodWallet)
	f.wallet.captureEvent = &domain.PaymentEvent{Provider: domain.MethodWallet, Outcome: domain.OutcomeSucceeded}

	order, err := f.engine.CaptureWalletPayment(context.Background(), commands.CaptureWalletPaymentCommand{
		Principal: buyer,
		PaymentID: checkout.PaymentID,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	assert.True(t, f.owns(t, buyerID, courseID))

	again, err := f.engine.CaptureWalletPayment(context.Background(), commands.CaptureWalletPaymentCommand{
		Principal: buyer,
		PaymentID: checkout.PaymentID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, again.Status)
	assert.Equal(t, 1, f.events.completedCount())
}

func TestCaptureWalletPaymentDeclined(t *testing.T) {
	f := newFixture(t)
	checkout := f.checkout(t, domain.MethodWallet)
	f.wallet.captureEvent = &domain.PaymentEvent{Provider: domain.MethodWallet, Outcome: domain.OutcomeFailed}

	_, err := f.engine.CaptureWalletPayment(context.Background(), commands.CaptureWalletPaymentCommand{
		Principal: buyer,
		PaymentID: checkout.PaymentID,
	})

	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
	assert.Equal(t, domain.StatusPending, f.status(t, checkout.Order.ID))
	assert.False(t, f.owns(t, buyerID, courseID))
}

func TestCaptureWalletPaymentRejections(t *testing.T) {
	f := newFixture(t)
	card := f.checkout(t, domain.MethodCard)
	stranger := domain.Principal{ID: "user-2", Role: domain.RoleUser}

	_, err := f.engine.CaptureWalletPayment(context.Background(), commands.CaptureWalletPaymentCommand{Principal: buyer, PaymentID: card.PaymentID})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.CaptureWalletPayment(context.Background(), commands.CaptureWalletPaymentCommand{Principal: stranger, PaymentID: card.PaymentID})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.engine.CaptureWalletPayment(context.Background(), commands.CaptureWalletPaymentCommand{Principal: buyer, PaymentID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
