package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Catalog reads course prices from the courses table.
type Catalog struct {
	db tx.DBGetter
}

func NewCatalog(pg *database.Postgres) *Catalog {
	return &Catalog{db: pg.DBGetter}
}

func (c *Catalog) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	var (
		course   domain.Course
		discount *decimal.Decimal
	)
	err := c.db(ctx).QueryRow(ctx,
		"SELECT id, title, price, discount_price, published FROM courses WHERE id = $1", id,
	).Scan(&course.ID, &course.Title, &course.Price, &discount, &course.Published)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select course: %w", err)
	}
	course.DiscountPrice = discount
	return &course, nil
}

// UserDirectory reads buyer details from the users table.
type UserDirectory struct {
	db tx.DBGetter
}

func NewUserDirectory(pg *database.Postgres) *UserDirectory {
	return &UserDirectory{db: pg.DBGetter}
}

func (d *UserDirectory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := d.db(ctx).QueryRow(ctx,
		"SELECT id, name, email, role, active FROM users WHERE id = $1", id,
	).Scan(&user.ID, &user.Name, &user.Email, &role, &user.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	user.Role = domain.ParseRole(role)
	return &user, nil
}

func (d *UserDirectory) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := d.db(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
