package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
)

type entitlementRow struct {
	UserID      string     `db:"user_id"`
	CourseID    string     `db:"course_id"`
	PurchasedAt time.Time  `db:"purchased_at"`
	Completed   bool       `db:"completed"`
	Progress    int        `db:"progress"`
	AccessUntil *time.Time `db:"access_until"`
}

// EntitlementRepository keeps owned courses in the user_courses table.
type EntitlementRepository struct {
	db tx.DBGetter
}

func NewEntitlementRepository(pg *database.Postgres) *EntitlementRepository {
	return &EntitlementRepository{db: pg.DBGetter}
}

// Grant inserts the entitlement. The (user_id, course_id) key keeps it unique,
// so an existing row is left as it is.
func (r *EntitlementRepository) Grant(ctx context.Context, e domain.Entitlement) error {
	query := `
		INSERT INTO user_courses (user_id, course_id, purchased_at, completed, progress, access_until)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, course_id) DO NOTHING
	`

	_, err := r.db(ctx).Exec(ctx, query, e.UserID, e.CourseID, e.PurchasedAt, e.Completed, e.Progress, e.AccessUntil)
	if err != nil {
		return fmt.Errorf("insert entitlement: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) Revoke(ctx context.Context, userID, courseID string) error {
	_, err := r.db(ctx).Exec(ctx, "DELETE FROM user_courses WHERE user_id = $1 AND course_id = $2", userID, courseID)
	if err != nil {
		return fmt.Errorf("delete entitlement: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) Has(ctx context.Context, userID, courseID string) (bool, error) {
	var owned bool
	err := r.db(ctx).QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM user_courses WHERE user_id = $1 AND course_id = $2)",
		userID, courseID,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("select entitlement: %w", err)
	}
	return owned, nil
}

func (r *EntitlementRepository) ListByUser(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT user_id, course_id, purchased_at, completed, progress, access_until
		FROM user_courses
		WHERE user_id = $1
		ORDER BY purchased_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query entitlements: %w", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[entitlementRow])
	if err != nil {
		return nil, fmt.Errorf("collect entitlements: %w", err)
	}

	result := make([]domain.Entitlement, len(collected))
	for i, row := range collected {
		result[i] = domain.Entitlement{
			UserID:      row.UserID,
			CourseID:    row.CourseID,
			PurchasedAt: row.PurchasedAt.UTC(),
			Completed:   row.Completed,
			Progress:    row.Progress,
			AccessUntil: row.AccessUntil,
		}
	}
	return result, nil
}
