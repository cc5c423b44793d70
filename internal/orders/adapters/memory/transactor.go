package memory

import (
	"context"
	"sync"
)

type txKey struct{}

// Transactor serializes units of work against the in-memory stores.
// It provides isolation between units but cannot roll back partial writes.
type Transactor struct {
	mu sync.Mutex
}

func NewTransactor() *Transactor {
	return &Transactor{}
}

// WithinTransaction runs fn while holding the unit-of-work lock. Nested calls reuse the outer unit.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}
