package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when input fails business validation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when the requested order, course or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated is returned when no principal accompanies a request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrUnauthorized is returned when the principal lacks permission for the operation.
	ErrUnauthorized = errors.New("not authorized")
	// ErrConflict is returned when the current state does not allow the operation.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate is returned by stores on a unique key violation.
	ErrDuplicate = fmt.Errorf("%w: duplicate record", ErrConflict)
	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ProviderError describes a failed call to an external payment provider.
type ProviderError struct {
	Provider   PaymentMethod
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err wraps a ProviderError.
func IsProviderError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr)
}
