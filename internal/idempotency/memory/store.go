package memory

import (
	"context"
	"sync"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

type entry struct {
	response ports.StoredResponse
	savedAt  time.Time
}

// Store retains checkout responses so a retried request replays the first answer.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]entry
	now   func() time.Time
}

// NewStore creates an in-memory store. Entries older than ttl are forgotten; a
// zero ttl keeps them for the life of the process.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:   ttl,
		items: make(map[string]entry),
		now:   time.Now,
	}
}

// Get returns the stored response for key, or nil when there is none.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if s.expired(value) {
		delete(s.items, key)
		return nil, nil
	}
	response := value.response
	return &response, nil
}

// Reserve claims key for the caller. It returns false when a live entry,
// finished or pending, already holds the key.
func (s *Store) Reserve(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok && !s.expired(existing) {
		return false, nil
	}
	s.items[key] = entry{savedAt: s.now()}
	return true, nil
}

// Release drops a pending reservation. Saved responses are kept.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok && existing.response.Pending() {
		delete(s.items, key)
	}
	return nil
}

// Save keeps the first response stored under key, replacing a reservation.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok && !s.expired(existing) && !existing.response.Pending() {
		return nil
	}
	s.items[key] = entry{response: response, savedAt: s.now()}
	return nil
}

func (s *Store) expired(e entry) bool {
	return s.ttl > 0 && s.now().Sub(e.savedAt) > s.ttl
}
