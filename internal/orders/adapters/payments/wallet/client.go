// Package wallet talks to a PayPal-compatible orders API.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/adapters/payments"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	ReturnURL     string
	CancelURL     string
	Timeout       time.Duration
}

// Client is the wallet payment adapter. Capture is synchronous.
type Client struct {
	cfg  Config
	http *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Method() domain.PaymentMethod {
	return domain.MethodWallet
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	Amount   *money `json:"amount"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	Payments    struct {
		Captures []capture `json:"captures"`
	} `json:"payments"`
}

type providerOrder struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

func (c *Client) CreateCheckout(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderID,
			"invoice_id":   req.OrderID,
			"custom_id":    customID(req.UserID, req.CourseID),
			"description":  req.CourseTitle,
			"amount": money{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"return_url": c.cfg.ReturnURL,
			"cancel_url": c.cfg.CancelURL,
		},
	}

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/v2/checkout/orders", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("PayPal-Request-Id", "checkout-"+req.OrderID)

	var order providerOrder
	if err := payments.DoJSON(c.http, httpReq, domain.MethodWallet, "create order", &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, &domain.ProviderError{Provider: domain.MethodWallet, Op: "create order", Err: fmt.Errorf("response without order id")}
	}

	return &ports.CheckoutSession{
		PaymentID:     order.ID,
		RedirectURL:   approveLink(order.Links),
		InitialStatus: domain.StatusPending,
	}, nil
}

// Capture settles an approved provider order and reports the immediate outcome.
func (c *Client) Capture(ctx context.Context, paymentID string) (*domain.PaymentEvent, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(paymentID)+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("PayPal-Request-Id", "capture-"+paymentID)

	var order providerOrder
	if err := payments.DoJSON(c.http, httpReq, domain.MethodWallet, "capture", &order); err != nil {
		return nil, err
	}

	event := &domain.PaymentEvent{
		Provider:  domain.MethodWallet,
		PaymentID: paymentID,
		Outcome:   captureOutcome(order.Status),
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		event.OrderID = unit.ReferenceID
		event.UserID, event.CourseID = splitCustomID(unit.CustomID)
		if len(unit.Payments.Captures) > 0 {
			captured := unit.Payments.Captures[0]
			event.EventID = captured.ID
			event.Outcome = captureOutcome(captured.Status)
			if event.UserID == "" {
				event.UserID, event.CourseID = splitCustomID(captured.CustomID)
			}
			event.Amount = parseAmount(captured.Amount)
		}
	}
	return event, nil
}

func (c *Client) Refund(ctx context.Context, req ports.RefundRequest) (*ports.RefundResult, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(req.PaymentID), nil)
	if err != nil {
		return nil, err
	}
	var order providerOrder
	if err := payments.DoJSON(c.http, httpReq, domain.MethodWallet, "get order", &order); err != nil {
		return nil, err
	}

	captureID := ""
	for _, unit := range order.PurchaseUnits {
		for _, captured := range unit.Payments.Captures {
			if captured.Status == "COMPLETED" {
				captureID = captured.ID
			}
		}
	}
	if captureID == "" {
		return nil, &domain.ProviderError{Provider: domain.MethodWallet, Op: "refund", Err: fmt.Errorf("order %s has no completed capture", req.PaymentID)}
	}

	body := map[string]any{
		"amount": money{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        req.Amount.StringFixed(2),
		},
		"invoice_id":    req.OrderID,
		"note_to_payer": req.Reason,
	}
	httpReq, err = c.newJSONRequest(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("PayPal-Request-Id", req.IdempotencyKey())

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := payments.DoJSON(c.http, httpReq, domain.MethodWallet, "refund", &refund); err != nil {
		return nil, err
	}
	return &ports.RefundResult{RefundID: refund.ID}, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode wallet request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build wallet request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func approveLink(links []link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func captureOutcome(status string) domain.PaymentOutcome {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return domain.OutcomeSucceeded
	case "PENDING", "APPROVED", "SAVED":
		return domain.OutcomeProcessing
	default:
		return domain.OutcomeFailed
	}
}

func customID(userID, courseID string) string {
	return userID + ":" + courseID
}

func splitCustomID(raw string) (userID, courseID string) {
	userID, courseID, ok := strings.Cut(raw, ":")
	if !ok {
		return "", ""
	}
	return userID, courseID
}
