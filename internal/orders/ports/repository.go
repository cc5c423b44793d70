package ports

import (
	"context"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// OrderRepository exposes persistence operations required by the application layer.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) (OrderPage, error)
	// Transition moves the order to next only if its current status equals expected
	// (any status when expected is nil). It returns domain.ErrNotFound when the order
	// does not exist and domain.ErrConflict when the status has moved on.
	Transition(ctx context.Context, id string, expected *domain.OrderStatus, next domain.OrderStatus, patch domain.OrderPatch) (*domain.Order, error)
	ListStalePending(ctx context.Context, olderThan time.Time, methods []domain.PaymentMethod) ([]domain.Order, error)
}

// ListFilter narrows list queries by owner, status, search text and pagination.
type ListFilter struct {
	UserID   *string
	Status   *domain.OrderStatus
	Search   *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// OrderPage is one page of orders with the total count of matches.
type OrderPage struct {
	Orders   []domain.Order `json:"orders"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"limit"`
	Pages    int            `json:"pages"`
}

// StatisticsReader serves the aggregate reads behind admin statistics.
type StatisticsReader interface {
	CompletedTotals(ctx context.Context) (CompletedTotals, error)
	ListCompletedSince(ctx context.Context, since time.Time) ([]domain.Order, error)
}

// CompletedTotals sums all completed orders.
type CompletedTotals struct {
	Revenue decimal.Decimal
	Count   int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalized returns the filter with pagination defaults applied. Pagination is 1-based.
func (f ListFilter) Normalized() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset is the number of rows to skip for the filter's page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// NewOrderPage assembles a page for a normalized filter.
func NewOrderPage(orders []domain.Order, total int, filter ListFilter) OrderPage {
	if orders == nil {
		orders = []domain.Order{}
	}
	pages := 0
	if filter.PageSize > 0 {
		pages = (total + filter.PageSize - 1) / filter.PageSize
	}
	return OrderPage{
		Orders:   orders,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Pages:    pages,
	}
}
