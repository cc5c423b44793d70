package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/app"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/gorilla/mux"
)

const (
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	maxBodyBytes = 1 << 20
)

// Handler exposes HTTP endpoints for checkout, reconciliation and order administration.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes binds the order handlers to router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/checkout", h.createCheckout).Methods(http.MethodPost)
	v1.HandleFunc("/payments/wallet/capture", h.captureWallet).Methods(http.MethodPost)
	v1.HandleFunc("/webhooks/{provider}", h.handleWebhook).Methods(http.MethodPost)

	v1.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	v1.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	v1.HandleFunc("/orders/{id}/invoice", h.getInvoice).Methods(http.MethodGet)
	v1.HandleFunc("/orders/{id}/cancel", h.cancelOrder).Methods(http.MethodPost)
	v1.HandleFunc("/me/courses", h.ownedCourses).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/orders/{id}/confirm-bank-transfer", h.confirmBankTransfer).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/status", h.setStatus).Methods(http.MethodPut)
	admin.HandleFunc("/orders/{id}/refund", h.refund).Methods(http.MethodPost)
	admin.HandleFunc("/statistics", h.statistics).Methods(http.MethodGet)
}

// principalFrom reads the caller identity forwarded by the gateway.
func principalFrom(r *http.Request) domain.Principal {
	return domain.Principal{
		ID:   strings.TrimSpace(r.Header.Get(headerUserID)),
		Role: domain.ParseRole(r.Header.Get(headerUserRole)),
	}
}

type checkoutRequest struct {
	CourseID      string `json:"course_id"`
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := principalFrom(r)
	if !principal.Authenticated() {
		h.writeServiceError(w, r, principal, domain.ErrUnauthenticated)
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if idemKey != "" {
		// Keys are scoped per caller so one user cannot replay another user's checkout.
		idemKey = principal.ID + ":" + idemKey
		reserved, err := h.service.ReserveIdempotencyKey(ctx, idemKey)
		if err != nil {
			h.writeServiceError(w, r, principal, fmt.Errorf("reserve idempotency key: %w", err))
			return
		}
		if !reserved {
			h.replayIdempotent(w, r, principal, idemKey)
			return
		}
	}

	var payload checkoutRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		h.releaseIdempotencyKey(ctx, idemKey)
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := h.service.CreateCheckout(ctx, principal, payload.CourseID, payload.PaymentMethod)
	if err != nil {
		h.releaseIdempotencyKey(ctx, idemKey)
		h.writeServiceError(w, r, principal, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		h.writeServiceError(w, r, principal, fmt.Errorf("encode checkout: %w", err))
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{
			StatusCode: http.StatusCreated,
			Body:       body,
			OrderID:    result.Order.ID,
		}
		// The reservation stays pending on failure so a retry cannot open a second order.
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, stored); err != nil {
			h.logger.WarnContext(ctx, "failed to store idempotent response",
				slog.String("order_id", result.Order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// replayIdempotent answers a request whose key is already taken: with the
// stored response when there is one, with 409 while the first request runs.
func (h *Handler) replayIdempotent(w http.ResponseWriter, r *http.Request, principal domain.Principal, key string) {
	stored, err := h.service.GetIdempotentResponse(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, principal, fmt.Errorf("load idempotent response: %w", err))
		return
	}
	if stored == nil || stored.Pending() {
		writeError(w, http.StatusConflict, "a request with this idempotency key is still in progress")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

func (h *Handler) releaseIdempotencyKey(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.service.ReleaseIdempotencyKey(ctx, key); err != nil {
		h.logger.WarnContext(ctx, "failed to release idempotency key", slog.String("error", err.Error()))
	}
}

type captureRequest struct {
	PaymentID string `json:"payment_id"`
}

func (h *Handler) captureWallet(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var payload captureRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.CaptureWalletPayment(r.Context(), principal, payload.PaymentID)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		recordWebhook(provider, webhookRejected)
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), provider, payload, r.Header.Get)
	if err != nil {
		recordWebhook(provider, webhookOutcome(err))
		// Webhooks carry no principal; providers never see internal detail.
		h.writeServiceError(w, r, domain.Principal{}, err)
		return
	}

	if result.Duplicate {
		recordWebhook(provider, webhookDuplicate)
	} else {
		recordWebhook(provider, webhookProcessed)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	order, err := h.service.GetOrder(r.Context(), principal, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	invoice, err := h.service.GetInvoice(r.Context(), principal, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	filter, err := parseListFilter(r)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}

	page, err := h.service.ListOrders(r.Context(), principal, filter)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseListFilter(r *http.Request) (ports.ListFilter, error) {
	query := r.URL.Query()
	filter := ports.ListFilter{}

	if raw := query.Get("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("q")); raw != "" {
		filter.Search = &raw
	}
	if raw := strings.TrimSpace(query.Get("user_id")); raw != "" {
		filter.UserID = &raw
	}

	var err error
	if filter.Page, err = parseInt(query.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = parseInt(query.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.From, err = parseTime(query.Get("from"), "from", false); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(query.Get("to"), "to", true); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
	}
	return value, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseTime(raw, name string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a date or RFC 3339 timestamp", domain.ErrValidation, name)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	order, err := h.service.CancelOrder(r.Context(), principal, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) ownedCourses(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	courses, err := h.service.OwnedCourses(r.Context(), principal)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	if courses == nil {
		courses = []domain.Entitlement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

type confirmRequest struct {
	TransactionDetails string `json:"transaction_details"`
}

func (h *Handler) confirmBankTransfer(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var payload confirmRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.ConfirmBankTransfer(r.Context(), principal, mux.Vars(r)["id"], payload.TransactionDetails)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var payload statusRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.SetStatus(r.Context(), principal, mux.Vars(r)["id"], payload.Status)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)

	var payload refundRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.Refund(r.Context(), principal, mux.Vars(r)["id"], payload.Reason)
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r)
	stats, err := h.service.Statistics(r.Context(), principal, r.URL.Query().Get("period"))
	if err != nil {
		h.writeServiceError(w, r, principal, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeJSON reads a bounded JSON body. An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == io.EOF {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
