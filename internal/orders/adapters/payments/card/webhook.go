package card

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "Stripe-Signature"

const (
	eventSessionCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceed  = "checkout.session.async_payment_succeeded"
	eventAsyncPaymentFailed   = "checkout.session.async_payment_failed"
	eventSessionExpired       = "checkout.session.expired"
	paymentStatusPaid         = "paid"
	paymentStatusNoneRequired = "no_payment_required"
)

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			PaymentStatus     string            `json:"payment_status"`
			ClientReferenceID string            `json:"client_reference_id"`
			AmountTotal       *int64            `json:"amount_total"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (c *Client) SignatureHeader() string {
	return SignatureHeader
}

// ParseWebhook verifies the signature and maps checkout session events to payment events.
func (c *Client) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if err := c.verify(payload, signature); err != nil {
		return nil, err
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode card webhook: %w", err)
	}

	var outcome domain.PaymentOutcome
	switch evt.Type {
	case eventSessionCompleted:
		switch evt.Data.Object.PaymentStatus {
		case paymentStatusPaid, paymentStatusNoneRequired:
			outcome = domain.OutcomeSucceeded
		default:
			outcome = domain.OutcomeProcessing
		}
	case eventAsyncPaymentSucceed:
		outcome = domain.OutcomeSucceeded
	case eventAsyncPaymentFailed, eventSessionExpired:
		outcome = domain.OutcomeFailed
	default:
		return nil, nil
	}

	obj := evt.Data.Object
	userID := obj.Metadata["user_id"]
	if userID == "" {
		userID = obj.ClientReferenceID
	}

	event := &domain.PaymentEvent{
		Provider:  domain.MethodCard,
		EventID:   evt.ID,
		PaymentID: obj.ID,
		OrderID:   obj.Metadata["order_id"],
		UserID:    userID,
		CourseID:  obj.Metadata["course_id"],
		Outcome:   outcome,
		Raw:       payload,
	}
	if obj.AmountTotal != nil {
		amount := decimal.New(*obj.AmountTotal, -2)
		event.Amount = &amount
	}
	return event, nil
}

// verify checks a "t=<unix>,v1=<hex>" header against HMAC-SHA256 of "<t>.<payload>".
func (c *Client) verify(payload []byte, header string) error {
	if c.cfg.WebhookSecret == "" {
		return fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidSignature)
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed signature header", domain.ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrInvalidSignature)
	}
	age := c.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > c.cfg.Tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
	}

	expected := Sign(c.cfg.WebhookSecret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// Sign computes the v1 signature for payload signed at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a complete header for payload, as the provider would send it.
func SignatureHeaderValue(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + Sign(secret, ts, payload)
}
