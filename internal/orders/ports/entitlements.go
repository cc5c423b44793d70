package ports

import (
	"context"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

// EntitlementRepository stores which courses a user owns.
// Grant and Revoke are idempotent.
type EntitlementRepository interface {
	Grant(ctx context.Context, entitlement domain.Entitlement) error
	Revoke(ctx context.Context, userID, courseID string) error
	Has(ctx context.Context, userID, courseID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Entitlement, error)
}
