// Package banktransfer issues payment references for manual bank transfers.
package banktransfer

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

const referenceRandomChars = 8

// Provider hands out payee details. It never calls an external service:
// transfers are confirmed by an admin and refunds are processed by hand.
type Provider struct {
	details domain.BankDetails
	now     func() time.Time
}

func New(details domain.BankDetails) *Provider {
	return &Provider{
		details: details,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *Provider) Method() domain.PaymentMethod {
	return domain.MethodBankTransfer
}

func (p *Provider) CreateCheckout(_ context.Context, _ ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	reference, err := p.newReference()
	if err != nil {
		return nil, &domain.ProviderError{Provider: domain.MethodBankTransfer, Op: "create reference", Retryable: true, Err: err}
	}
	details := p.details
	return &ports.CheckoutSession{
		Reference:     reference,
		BankDetails:   &details,
		InitialStatus: domain.StatusAwaitingPayment,
	}, nil
}

// Refund marks the refund for manual processing.
func (p *Provider) Refund(_ context.Context, _ ports.RefundRequest) (*ports.RefundResult, error) {
	return &ports.RefundResult{Manual: true}, nil
}

// newReference builds BT-<yyyymmdd>-<8 base32 chars>.
func (p *Provider) newReference() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	suffix := base32.StdEncoding.EncodeToString(buf)[:referenceRandomChars]
	return fmt.Sprintf("BT-%s-%s", p.now().Format("20060102"), suffix), nil
}
