package card

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionEvent(eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": %q,
		"data": {"object": {
			"id": "cs_123",
			"payment_status": %q,
			"client_reference_id": "u-1",
			"amount_total": 4900,
			"metadata": {"order_id": "o-1", "user_id": "u-1", "course_id": "c-1"}
		}}
	}`, eventType, paymentStatus))
}

func TestParseWebhook(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	client := New(Config{WebhookSecret: webhookSecret}, WithClock(func() time.Time { return now }))

	tests := []struct {
		name      string
		eventType string
		status    string
		want      domain.PaymentOutcome
	}{
		{"paid session succeeds", "checkout.session.completed", "paid", domain.OutcomeSucceeded},
		{"unpaid session is processing", "checkout.session.completed", "unpaid", domain.OutcomeProcessing},
		{"async success", "checkout.session.async_payment_succeeded", "paid", domain.OutcomeSucceeded},
		{"async failure", "checkout.session.async_payment_failed", "unpaid", domain.OutcomeFailed},
		{"expired session", "checkout.session.expired", "unpaid", domain.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := sessionEvent(tt.eventType, tt.status)
			event, err := client.ParseWebhook(payload, SignatureHeaderValue(webhookSecret, now, payload))
			require.NoError(t, err)
			require.NotNil(t, event)

			assert.Equal(t, tt.want, event.Outcome)
			assert.Equal(t, "cs_123", event.PaymentID)
			assert.Equal(t, "o-1", event.OrderID)
			assert.Equal(t, "u-1", event.UserID)
			assert.Equal(t, "c-1", event.CourseID)
			require.NotNil(t, event.Amount)
			assert.Equal(t, "49", event.Amount.String())
		})
	}

	t.Run("ignores unrelated events", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"customer.created","data":{"object":{}}}`)
		event, err := client.ParseWebhook(payload, SignatureHeaderValue(webhookSecret, now, payload))
		require.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		payload := sessionEvent("checkout.session.completed", "paid")
		header := SignatureHeaderValue(webhookSecret, now, payload)
		_, err := client.ParseWebhook(append(payload, ' '), header)
		assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		payload := sessionEvent("checkout.session.completed", "paid")
		_, err := client.ParseWebhook(payload, SignatureHeaderValue("other", now, payload))
		assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
	})

	t.Run("rejects stale timestamp", func(t *testing.T) {
		payload := sessionEvent("checkout.session.completed", "paid")
		_, err := client.ParseWebhook(payload, SignatureHeaderValue(webhookSecret, now.Add(-10*time.Minute), payload))
		assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
	})

	t.Run("rejects missing header", func(t *testing.T) {
		_, err := client.ParseWebhook(sessionEvent("checkout.session.completed", "paid"), "")
		assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
	})

	t.Run("reports malformed json after valid signature", func(t *testing.T) {
		payload := []byte(`{not json`)
		_, err := client.ParseWebhook(payload, SignatureHeaderValue(webhookSecret, now, payload))
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrInvalidSignature))
	})
}
