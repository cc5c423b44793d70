package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

const genericPaymentError = "payment could not be processed"

// statusFor maps an application error to its HTTP status.
func statusFor(err error) int {
	var perr *domain.ProviderError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &perr):
		if perr.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Provider and internal
// failures are only described to admins.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, principal domain.Principal, err error) {
	status := statusFor(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", message),
		)
		if !principal.IsAdmin() {
			message = genericPaymentError
		}
	}

	writeError(w, status, message)
}
