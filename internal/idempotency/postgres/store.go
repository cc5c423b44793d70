package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
)

type Store struct {
	db  tx.DBGetter
	ttl time.Duration
}

// NewStore creates a store over the idempotency_keys table. Keys older than ttl
// are ignored on read and replaced on write; a zero ttl never expires them.
func NewStore(pg *database.Postgres, ttl time.Duration) *Store {
	return &Store{db: pg.DBGetter, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1 AND ($2::interval IS NULL OR created_at > NOW() - $2::interval)
	`

	var resp ports.StoredResponse
	err := s.db(ctx).QueryRow(ctx, query, key, s.interval()).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Reserve inserts a pending row for key, or takes over an expired one. It
// returns false when a live row already exists.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at)
		VALUES ($1, 0, ''::bytea, '', NOW())
		ON CONFLICT (key) DO UPDATE
		SET status_code = 0,
		    body = ''::bytea,
		    order_id = '',
		    created_at = NOW()
		WHERE $2::interval IS NOT NULL AND idempotency_keys.created_at <= NOW() - $2::interval
	`

	tag, err := s.db(ctx).Exec(ctx, query, key, s.interval())
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes key if it is still pending.
func (s *Store) Release(ctx context.Context, key string) error {
	query := `DELETE FROM idempotency_keys WHERE key = $1 AND status_code = 0`

	if _, err := s.db(ctx).Exec(ctx, query, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Save keeps the first live response for key, replacing a pending reservation.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body = EXCLUDED.body,
		    order_id = EXCLUDED.order_id,
		    created_at = EXCLUDED.created_at
		WHERE idempotency_keys.status_code = 0
		   OR ($5::interval IS NOT NULL AND idempotency_keys.created_at <= NOW() - $5::interval)
	`

	_, err := s.db(ctx).Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, s.interval())
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

func (s *Store) interval() *time.Duration {
	if s.ttl <= 0 {
		return nil
	}
	return &s.ttl
}
