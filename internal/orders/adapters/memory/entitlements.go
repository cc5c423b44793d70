package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

type entitlementKey struct {
	userID   string
	courseID string
}

// EntitlementRepository keeps owned courses in memory.
type EntitlementRepository struct {
	mu    sync.RWMutex
	items map[entitlementKey]domain.Entitlement
}

func NewEntitlementRepository() *EntitlementRepository {
	return &EntitlementRepository{items: make(map[entitlementKey]domain.Entitlement)}
}

// Grant records the entitlement unless the user already owns the course.
func (r *EntitlementRepository) Grant(_ context.Context, entitlement domain.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entitlementKey{entitlement.UserID, entitlement.CourseID}
	if _, ok := r.items[key]; ok {
		return nil
	}
	r.items[key] = entitlement
	return nil
}

func (r *EntitlementRepository) Revoke(_ context.Context, userID, courseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, entitlementKey{userID, courseID})
	return nil
}

func (r *EntitlementRepository) Has(_ context.Context, userID, courseID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[entitlementKey{userID, courseID}]
	return ok, nil
}

func (r *EntitlementRepository) ListByUser(_ context.Context, userID string) ([]domain.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.Entitlement{}
	for key, entitlement := range r.items {
		if key.userID == userID {
			result = append(result, entitlement)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PurchasedAt.Before(result[j].PurchasedAt)
	})
	return result, nil
}
