package wallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "Paypal-Transmission-Sig"

type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		CustomID          string `json:"custom_id"`
		InvoiceID         string `json:"invoice_id"`
		Amount            *money `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (c *Client) SignatureHeader() string {
	return SignatureHeader
}

// ParseWebhook verifies the hex HMAC-SHA256 signature and maps capture events.
// The payment id is the provider order id, as returned at checkout.
func (c *Client) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if c.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidSignature)
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(c.cfg.WebhookSecret, payload))) {
		return nil, domain.ErrInvalidSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode wallet webhook: %w", err)
	}

	var outcome domain.PaymentOutcome
	switch evt.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		outcome = domain.OutcomeSucceeded
	case "PAYMENT.CAPTURE.PENDING":
		outcome = domain.OutcomeProcessing
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		outcome = domain.OutcomeFailed
	default:
		return nil, nil
	}

	res := evt.Resource
	userID, courseID := splitCustomID(res.CustomID)
	return &domain.PaymentEvent{
		Provider:  domain.MethodWallet,
		EventID:   evt.ID,
		PaymentID: res.SupplementaryData.RelatedIDs.OrderID,
		OrderID:   res.InvoiceID,
		UserID:    userID,
		CourseID:  courseID,
		Outcome:   outcome,
		Amount:    parseAmount(res.Amount),
		Raw:       payload,
	}, nil
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseAmount(m *money) *decimal.Decimal {
	if m == nil || m.Value == "" {
		return nil
	}
	amount, err := decimal.NewFromString(m.Value)
	if err != nil {
		return nil
	}
	return &amount
}
