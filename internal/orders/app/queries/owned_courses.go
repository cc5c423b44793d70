package queries

import (
	"context"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

type OwnedCoursesQueryHandler struct {
	entitlements ports.EntitlementRepository
}

func NewOwnedCoursesQueryHandler(entitlements ports.EntitlementRepository) *OwnedCoursesQueryHandler {
	return &OwnedCoursesQueryHandler{entitlements: entitlements}
}

// Handle lists the caller's entitlements.
func (h *OwnedCoursesQueryHandler) Handle(ctx context.Context, principal domain.Principal) ([]domain.Entitlement, error) {
	if !principal.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return h.entitlements.ListByUser(ctx, principal.ID)
}
