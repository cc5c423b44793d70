package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/avast/retry-go"
)

// RetryConfig bounds retries of entitlement writes.
type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryConfig is used when no retry configuration is supplied.
var DefaultRetryConfig = RetryConfig{Attempts: 3, Delay: 50 * time.Millisecond, MaxDelay: time.Second}

// EntitlementGranter grants and revokes course access with bounded retries.
// Both operations are idempotent, so retrying them is always safe.
//
// Grant and Revoke retry a single statement and must not run inside a
// transaction: postgres aborts the transaction on the first failure, so a
// retried statement can only fail again. Inside a unit of work use
// WithinRetriedTransaction, which retries the whole transaction instead.
type EntitlementGranter struct {
	repo   ports.EntitlementRepository
	logger *slog.Logger
	retry  RetryConfig
}

func NewEntitlementGranter(repo ports.EntitlementRepository, logger *slog.Logger, cfg RetryConfig) *EntitlementGranter {
	if cfg.Attempts == 0 {
		cfg = DefaultRetryConfig
	}
	return &EntitlementGranter{repo: repo, logger: logger, retry: cfg}
}

// Grant gives userID access to courseID. Existing access is left untouched.
func (g *EntitlementGranter) Grant(ctx context.Context, userID, courseID string, purchasedAt time.Time) error {
	return g.do(ctx, "grant", userID, courseID, func() error {
		return g.grantOnce(ctx, userID, courseID, purchasedAt)
	})
}

// Revoke removes access. Removing access that does not exist succeeds.
func (g *EntitlementGranter) Revoke(ctx context.Context, userID, courseID string) error {
	err := g.do(ctx, "revoke", userID, courseID, func() error {
		return g.repo.Revoke(ctx, userID, courseID)
	})
	if err != nil {
		return fmt.Errorf("revoke entitlement %s/%s: %w", userID, courseID, err)
	}
	return nil
}

// WithinRetriedTransaction runs fn in a fresh transaction per attempt.
// fn must write entitlements through grantOnce, never through Grant.
func (g *EntitlementGranter) WithinRetriedTransaction(
	ctx context.Context,
	transactor ports.Transactor,
	userID, courseID string,
	fn func(ctx context.Context) error,
) error {
	return g.do(ctx, "transaction", userID, courseID, func() error {
		return transactor.WithinTransaction(ctx, fn)
	})
}

func (g *EntitlementGranter) grantOnce(ctx context.Context, userID, courseID string, purchasedAt time.Time) error {
	if err := g.repo.Grant(ctx, domain.NewEntitlement(userID, courseID, purchasedAt)); err != nil {
		return fmt.Errorf("grant entitlement %s/%s: %w", userID, courseID, err)
	}
	return nil
}

func (g *EntitlementGranter) do(ctx context.Context, op, userID, courseID string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Attempts(g.retry.Attempts),
		retry.Delay(g.retry.Delay),
		retry.MaxDelay(g.retry.MaxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			g.logger.WarnContext(ctx, "entitlement write failed",
				"op", op,
				"attempt", n+1,
				"user_id", userID,
				"course_id", courseID,
				"error", err,
			)
		}),
	)
}

// retryable rejects cancellation and domain outcomes, which a retry cannot change.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrUnauthenticated):
		return false
	}
	return true
}
