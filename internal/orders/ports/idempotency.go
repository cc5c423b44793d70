package ports

import "context"

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// Pending reports a reservation whose request has not finished yet.
func (r StoredResponse) Pending() bool {
	return r.StatusCode == 0
}

// IdempotencyStore lets checkout requests be retried without opening a second order.
//
// A request first reserves its key. Only the caller that won the reservation
// may do the work; it then either saves the response over the reservation or
// releases the key so the request can be retried.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
}
