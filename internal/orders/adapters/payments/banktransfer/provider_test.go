package banktransfer

import (
	"context"
	"regexp"
	"testing"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referencePattern = regexp.MustCompile(`^BT-\d{8}-[A-Z2-7]{8}$`)

func TestCreateCheckout(t *testing.T) {
	details := domain.BankDetails{AccountName: "Training SAS", IBAN: "FR7630006000011234567890189", BIC: "AGRIFRPP", BankName: "Bank"}
	provider := New(details)

	session, err := provider.CreateCheckout(context.Background(), ports.CheckoutRequest{OrderID: "o-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAwaitingPayment, session.InitialStatus)
	assert.Empty(t, session.PaymentID)
	assert.Regexp(t, referencePattern, session.Reference)
	require.NotNil(t, session.BankDetails)
	assert.Equal(t, details, *session.BankDetails)
}

func TestReferencesAreDistinct(t *testing.T) {
	provider := New(domain.BankDetails{})
	seen := map[string]bool{}
	for range 100 {
		session, err := provider.CreateCheckout(context.Background(), ports.CheckoutRequest{})
		require.NoError(t, err)
		require.False(t, seen[session.Reference], "duplicate reference %s", session.Reference)
		seen[session.Reference] = true
	}
}

func TestRefundIsManual(t *testing.T) {
	result, err := New(domain.BankDetails{}).Refund(context.Background(), ports.RefundRequest{OrderID: "o-1"})
	require.NoError(t, err)
	assert.True(t, result.Manual)
}
