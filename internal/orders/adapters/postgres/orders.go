package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "user_id", "course_id", "amount", "currency", "status", "payment_method",
	"payment_id", "reference", "transaction_details", "refund_reason", "refund_date", "refund_mode",
	"created_at", "updated_at",
}

type orderRow struct {
	ID                 string          `db:"id"`
	UserID             string          `db:"user_id"`
	CourseID           string          `db:"course_id"`
	Amount             decimal.Decimal `db:"amount"`
	Currency           string          `db:"currency"`
	Status             string          `db:"status"`
	PaymentMethod      string          `db:"payment_method"`
	PaymentID          *string         `db:"payment_id"`
	Reference          *string         `db:"reference"`
	TransactionDetails *string         `db:"transaction_details"`
	RefundReason       *string         `db:"refund_reason"`
	RefundDate         *time.Time      `db:"refund_date"`
	RefundMode         *string         `db:"refund_mode"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (r orderRow) toDomain() domain.Order {
	order := domain.Order{
		ID:                 r.ID,
		UserID:             r.UserID,
		CourseID:           r.CourseID,
		Amount:             r.Amount,
		Currency:           r.Currency,
		Status:             domain.OrderStatus(r.Status),
		PaymentMethod:      domain.PaymentMethod(r.PaymentMethod),
		PaymentID:          r.PaymentID,
		Reference:          r.Reference,
		TransactionDetails: r.TransactionDetails,
		RefundReason:       r.RefundReason,
		RefundMode:         r.RefundMode,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.RefundDate != nil {
		refunded := r.RefundDate.UTC()
		order.RefundDate = &refunded
	}
	return order
}

// Repository stores orders in PostgreSQL. Every statement goes through the
// transactor's DBGetter so it joins a surrounding transaction when there is one.
type Repository struct {
	db  tx.DBGetter
	now func() time.Time
}

func NewRepository(pg *database.Postgres) *Repository {
	return &Repository{
		db:  pg.DBGetter,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	query, args, err := psql.Insert("orders").
		Columns(orderColumns...).
		Values(
			order.ID, order.UserID, order.CourseID, order.Amount, order.Currency,
			string(order.Status), string(order.PaymentMethod),
			order.PaymentID, order.Reference, order.TransactionDetails,
			order.RefundReason, order.RefundDate, order.RefundMode,
			order.CreatedAt, order.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order: %w", err)
	}

	if _, err := r.db(ctx).Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert order %s: %w", order.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"payment_id": paymentID})
}

func (r *Repository) getOne(ctx context.Context, where sq.Sqlizer) (*domain.Order, error) {
	query, args, err := psql.Select(orderColumns...).From("orders").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select order: %w", err)
	}

	orders, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}

	return &orders[0], nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) (ports.OrderPage, error) {
	filter = filter.Normalized()
	where := listConditions(filter)

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("orders").Where(where).ToSql()
	if err != nil {
		return ports.OrderPage{}, fmt.Errorf("build count orders: %w", err)
	}

	var total int
	if err := r.db(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return ports.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}

	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(filter.Offset())).
		ToSql()
	if err != nil {
		return ports.OrderPage{}, fmt.Errorf("build list orders: %w", err)
	}

	orders, err := r.query(ctx, query, args...)
	if err != nil {
		return ports.OrderPage{}, fmt.Errorf("query orders: %w", err)
	}

	return ports.NewOrderPage(orders, total, filter), nil
}

func listConditions(filter ports.ListFilter) sq.And {
	where := sq.And{}
	if filter.UserID != nil {
		where = append(where, sq.Eq{"user_id": *filter.UserID})
	}
	if filter.Status != nil {
		where = append(where, sq.Eq{"status": string(*filter.Status)})
	}
	if filter.Search != nil {
		if term := strings.TrimSpace(*filter.Search); term != "" {
			pattern := "%" + escapeLike(term) + "%"
			where = append(where, sq.Or{
				sq.ILike{"id": pattern},
				sq.ILike{"reference": pattern},
			})
		}
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.Lt{"created_at": *filter.To})
	}
	return where
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Transition is a conditional UPDATE. When no row matches it looks the order up
// again to tell a missing order from one whose status has moved on.
func (r *Repository) Transition(
	ctx context.Context,
	id string,
	expected *domain.OrderStatus,
	next domain.OrderStatus,
	patch domain.OrderPatch,
) (*domain.Order, error) {
	where := sq.And{sq.Eq{"id": id}}
	if expected != nil {
		where = append(where, sq.Eq{"status": string(*expected)})
	}

	query, args, err := psql.Update("orders").
		Set("status", string(next)).
		Set("transaction_details", sq.Expr("COALESCE(transaction_details, ?)", patch.TransactionDetails)).
		Set("refund_reason", sq.Expr("COALESCE(refund_reason, ?)", patch.RefundReason)).
		Set("refund_date", sq.Expr("COALESCE(refund_date, ?)", patch.RefundDate)).
		Set("refund_mode", sq.Expr("COALESCE(refund_mode, ?)", patch.RefundMode)).
		Set("updated_at", r.now()).
		Where(where).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition order: %w", err)
	}

	orders, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition order %s: %w", id, err)
	}
	if len(orders) == 1 {
		return &orders[0], nil
	}

	var current string
	err = r.db(ctx).QueryRow(ctx, "SELECT status FROM orders WHERE id = $1", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order status: %w", err)
	}
	if expected == nil {
		return nil, fmt.Errorf("order %s changed during update: %w", id, domain.ErrConflict)
	}
	return nil, fmt.Errorf("order %s is %s, expected %s: %w", id, current, *expected, domain.ErrConflict)
}

func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Time, methods []domain.PaymentMethod) ([]domain.Order, error) {
	if len(methods) == 0 {
		return nil, nil
	}
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}

	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"status": string(domain.StatusPending), "payment_method": names}).
		Where(sq.Lt{"created_at": olderThan}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale orders: %w", err)
	}

	orders, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}
	return orders, nil
}

func (r *Repository) CompletedTotals(ctx context.Context) (ports.CompletedTotals, error) {
	var totals ports.CompletedTotals
	err := r.db(ctx).QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM orders WHERE status = $1",
		string(domain.StatusCompleted),
	).Scan(&totals.Revenue, &totals.Count)
	if err != nil {
		return ports.CompletedTotals{}, fmt.Errorf("sum completed orders: %w", err)
	}
	return totals, nil
}

func (r *Repository) ListCompletedSince(ctx context.Context, since time.Time) ([]domain.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"status": string(domain.StatusCompleted)}).
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build completed orders: %w", err)
	}

	orders, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query completed orders: %w", err)
	}
	return orders, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, len(collected))
	for i, row := range collected {
		orders[i] = row.toDomain()
	}
	return orders, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
