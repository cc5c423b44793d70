package card

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:       server.URL,
		SecretKey:     "sk_test",
		WebhookSecret: webhookSecret,
		SuccessURL:    "https://example.test/success",
		CancelURL:     "https://example.test/cancel",
	})
}

func TestCreateCheckout(t *testing.T) {
	t.Run("sends catalog amount in minor units with metadata", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
			assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
			assert.Equal(t, "checkout-o-1", r.Header.Get("Idempotency-Key"))
			assert.NoError(t, r.ParseForm())

			assert.Equal(t, "4900", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
			assert.Equal(t, "eur", r.PostForm.Get("line_items[0][price_data][currency]"))
			assert.Equal(t, "o-1", r.PostForm.Get("metadata[order_id]"))
			assert.Equal(t, "u-1", r.PostForm.Get("metadata[user_id]"))
			assert.Equal(t, "c-1", r.PostForm.Get("metadata[course_id]"))
			assert.Equal(t, "u-1", r.PostForm.Get("client_reference_id"))

			_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_123", "url": "https://pay.test/cs_123"})
		})

		session, err := client.CreateCheckout(context.Background(), ports.CheckoutRequest{
			OrderID:     "o-1",
			UserID:      "u-1",
			CourseID:    "c-1",
			CourseTitle: "Go in practice",
			Amount:      decimal.RequireFromString("49.00"),
			Currency:    "EUR",
		})
		require.NoError(t, err)
		assert.Equal(t, "cs_123", session.PaymentID)
		assert.Equal(t, "https://pay.test/cs_123", session.RedirectURL)
		assert.Equal(t, domain.StatusPending, session.InitialStatus)
	})

	t.Run("classifies server errors as retryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
		})

		_, err := client.CreateCheckout(context.Background(), ports.CheckoutRequest{OrderID: "o-1", Amount: decimal.NewFromInt(10)})

		var perr *domain.ProviderError
		require.True(t, errors.As(err, &perr))
		assert.True(t, perr.Retryable)
		assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
		assert.Contains(t, perr.Error(), "upstream down")
	})

	t.Run("classifies client errors as permanent", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := client.CreateCheckout(context.Background(), ports.CheckoutRequest{OrderID: "o-1", Amount: decimal.NewFromInt(10)})

		var perr *domain.ProviderError
		require.True(t, errors.As(err, &perr))
		assert.False(t, perr.Retryable)
	})
}

func TestRefund(t *testing.T) {
	t.Run("refunds the session payment intent with idempotency key", func(t *testing.T) {
		var refunded bool
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_123":
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_123", "payment_intent": "pi_9"})
			case r.Method == http.MethodPost && r.URL.Path == "/v1/refunds":
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "pi_9", r.PostForm.Get("payment_intent"))
				assert.Equal(t, "refund-o-1", r.Header.Get("Idempotency-Key"))
				refunded = true
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "re_1"})
			default:
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		})

		result, err := client.Refund(context.Background(), ports.RefundRequest{OrderID: "o-1", PaymentID: "cs_123"})
		require.NoError(t, err)
		assert.True(t, refunded)
		assert.Equal(t, "re_1", result.RefundID)
		assert.False(t, result.Manual)
	})

	t.Run("times out as a retryable provider error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.Refund(ctx, ports.RefundRequest{OrderID: "o-1", PaymentID: "cs_123"})

		var perr *domain.ProviderError
		require.True(t, errors.As(err, &perr))
		assert.True(t, perr.Retryable)
	})
}
