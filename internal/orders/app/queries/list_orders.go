package queries

import (
	"context"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

// ListOrdersQuery lists orders visible to the principal.
type ListOrdersQuery struct {
	Principal domain.Principal
	Filter    ports.ListFilter
}

// ListOrdersQueryHandler scopes listings to the caller unless the caller is an admin.
type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) (ports.OrderPage, error) {
	if !query.Principal.Authenticated() {
		return ports.OrderPage{}, domain.ErrUnauthenticated
	}

	filter := query.Filter.Normalized()
	if !query.Principal.IsAdmin() {
		own := query.Principal.ID
		filter.UserID = &own
	}

	return h.repo.List(ctx, filter)
}
