package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// Repository provides an in-memory order store useful for local development and tests.
type Repository struct {
	mu          sync.RWMutex
	orders      map[string]domain.Order
	byPayment   map[string]string
	byReference map[string]string
	now         func() time.Time
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		orders:      make(map[string]domain.Order),
		byPayment:   make(map[string]string),
		byReference: make(map[string]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new order instance. Payment ids and references are unique.
func (r *Repository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrDuplicate)
	}
	if order.PaymentID != nil {
		if _, ok := r.byPayment[*order.PaymentID]; ok {
			return fmt.Errorf("insert order payment_id %s: %w", *order.PaymentID, domain.ErrDuplicate)
		}
	}
	if order.Reference != nil {
		if _, ok := r.byReference[*order.Reference]; ok {
			return fmt.Errorf("insert order reference %s: %w", *order.Reference, domain.ErrDuplicate)
		}
	}

	r.orders[order.ID] = order
	if order.PaymentID != nil {
		r.byPayment[*order.PaymentID] = order.ID
	}
	if order.Reference != nil {
		r.byReference[*order.Reference] = order.ID
	}
	return nil
}

// GetByID fetches a single order by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := order
	return &copy, nil
}

// GetByPaymentID fetches the order carrying the provider payment id.
func (r *Repository) GetByPaymentID(_ context.Context, paymentID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPayment[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := r.orders[id]
	return &copy, nil
}

// List returns orders respecting the provided filter, newest first.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) (ports.OrderPage, error) {
	filter = filter.Normalized()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if matches(order, filter) {
			result = append(result, order)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := len(result)
	start := filter.Offset()
	if start >= total {
		return ports.NewOrderPage(nil, total, filter), nil
	}

	end := min(start+filter.PageSize, total)
	slice := make([]domain.Order, end-start)
	copy(slice, result[start:end])

	return ports.NewOrderPage(slice, total, filter), nil
}

func matches(order domain.Order, filter ports.ListFilter) bool {
	if filter.UserID != nil && order.UserID != *filter.UserID {
		return false
	}
	if filter.Status != nil && order.Status != *filter.Status {
		return false
	}
	if filter.From != nil && order.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && !order.CreatedAt.Before(*filter.To) {
		return false
	}
	if filter.Search != nil && *filter.Search != "" {
		needle := strings.ToLower(*filter.Search)
		ref := ""
		if order.Reference != nil {
			ref = strings.ToLower(*order.Reference)
		}
		if !strings.Contains(strings.ToLower(order.ID), needle) && !strings.Contains(ref, needle) {
			return false
		}
	}
	return true
}

// Transition applies a compare-and-swap status change.
func (r *Repository) Transition(
	_ context.Context,
	id string,
	expected *domain.OrderStatus,
	next domain.OrderStatus,
	patch domain.OrderPatch,
) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if expected != nil && order.Status != *expected {
		return nil, fmt.Errorf("order %s is %s, expected %s: %w", id, order.Status, *expected, domain.ErrConflict)
	}

	order.Status = next
	patch.Apply(&order)
	order.UpdatedAt = r.now()
	r.orders[id] = order

	copy := order
	return &copy, nil
}

// ListStalePending returns pending orders created before olderThan using one of methods.
func (r *Repository) ListStalePending(_ context.Context, olderThan time.Time, methods []domain.PaymentMethod) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if order.Status != domain.StatusPending || !order.CreatedAt.Before(olderThan) {
			continue
		}
		if !slices.Contains(methods, order.PaymentMethod) {
			continue
		}
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CompletedTotals sums every completed order.
func (r *Repository) CompletedTotals(_ context.Context) (ports.CompletedTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := ports.CompletedTotals{Revenue: decimal.Zero}
	for _, order := range r.orders {
		if order.Status != domain.StatusCompleted {
			continue
		}
		totals.Revenue = totals.Revenue.Add(order.Amount)
		totals.Count++
	}
	return totals, nil
}

// ListCompletedSince returns completed orders created at or after since, oldest first.
func (r *Repository) ListCompletedSince(_ context.Context, since time.Time) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if order.Status == domain.StatusCompleted && !order.CreatedAt.Before(since) {
			result = append(result, order)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
