// Package card talks to a Stripe-compatible hosted checkout API.
package card

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultTolerance = 5 * time.Minute
)

type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
	// Tolerance bounds the age of a signed webhook timestamp.
	Tolerance time.Duration
}

// Client is the card payment adapter.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithClock overrides the time source used for signature tolerance checks.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Method() domain.PaymentMethod {
	return domain.MethodCard
}

type checkoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	PaymentStatus string `json:"payment_status"`
}

func (c *Client) CreateCheckout(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][product_data][name]", req.CourseTitle)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(domain.MinorUnits(req.Amount), 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("client_reference_id", req.UserID)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("metadata[user_id]", req.UserID)
	form.Set("metadata[course_id]", req.CourseID)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	httpReq, err := c.newFormRequest(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Idempotency-Key", "checkout-"+req.OrderID)

	var session checkoutSession
	if err := payments.DoJSON(c.http, httpReq, domain.MethodCard, "create checkout", &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, &domain.ProviderError{Provider: domain.MethodCard, Op: "create checkout", Err: fmt.Errorf("response without session id")}
	}

	return &ports.CheckoutSession{
		PaymentID:     session.ID,
		RedirectURL:   session.URL,
		InitialStatus: domain.StatusPending,
	}, nil
}

func (c *Client) Refund(ctx context.Context, req ports.RefundRequest) (*ports.RefundResult, error) {
	httpReq, err := c.newFormRequest(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(req.PaymentID), nil)
	if err != nil {
		return nil, err
	}
	var session checkoutSession
	if err := payments.DoJSON(c.http, httpReq, domain.MethodCard, "retrieve session", &session); err != nil {
		return nil, err
	}
	if session.PaymentIntent == "" {
		return nil, &domain.ProviderError{Provider: domain.MethodCard, Op: "refund", Err: fmt.Errorf("session %s has no payment intent", req.PaymentID)}
	}

	form := url.Values{}
	form.Set("payment_intent", session.PaymentIntent)
	form.Set("reason", "requested_by_customer")
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("metadata[reason]", req.Reason)

	httpReq, err = c.newFormRequest(ctx, http.MethodPost, "/v1/refunds", form)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey())

	var refund struct {
		ID string `json:"id"`
	}
	if err := payments.DoJSON(c.http, httpReq, domain.MethodCard, "refund", &refund); err != nil {
		return nil, err
	}
	return &ports.RefundResult{RefundID: refund.ID}, nil
}

func (c *Client) newFormRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build card request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}
