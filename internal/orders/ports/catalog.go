package ports

import (
	"context"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

// Catalog is the authoritative source of course prices.
type Catalog interface {
	GetCourse(ctx context.Context, id string) (*domain.Course, error)
}

// UserDirectory resolves account details.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	CountUsers(ctx context.Context) (int, error)
}
