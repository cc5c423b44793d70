package queries

import (
	"context"
	"fmt"
	"strings"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

// GetOrderQuery represents a request to retrieve an order by its ID.
type GetOrderQuery struct {
	Principal domain.Principal
	OrderID   string
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if !q.Principal.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if strings.TrimSpace(q.OrderID) == "" {
		return fmt.Errorf("%w: order_id is required", domain.ErrValidation)
	}
	return nil
}

// GetOrderQueryHandler returns an order to its owner or an admin.
type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

// Handle executes the query and retrieves the order.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}
	if !query.Principal.CanAccess(*order) {
		return nil, fmt.Errorf("%w: order belongs to another user", domain.ErrUnauthorized)
	}

	return order, nil
}
