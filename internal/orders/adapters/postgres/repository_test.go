//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/database/dbtest"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/postgres"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"
)

func newOrder(id string, created time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		UserID:        "user-1",
		CourseID:      "course-1",
		Amount:        decimal.RequireFromString("49.00"),
		Currency:      "eur",
		Status:        domain.StatusPending,
		PaymentMethod: domain.MethodCard,
		PaymentID:     pointy.String("cs_" + id),
		CreatedAt:     created.UTC().Truncate(time.Microsecond),
		UpdatedAt:     created.UTC().Truncate(time.Microsecond),
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := postgres.NewRepository(dbtest.Start(t))
	ctx := context.Background()

	order := newOrder("order-1", time.Now())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	retrieved, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to retrieve order: %v", err)
	}
	if !retrieved.Amount.Equal(order.Amount) {
		t.Errorf("expected amount %s, got %s", order.Amount, retrieved.Amount)
	}
	if retrieved.Status != order.Status || retrieved.PaymentMethod != order.PaymentMethod {
		t.Errorf("unexpected order: %+v", retrieved)
	}
	if !retrieved.CreatedAt.Equal(order.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", order.CreatedAt, retrieved.CreatedAt)
	}

	byPayment, err := repo.GetByPaymentID(ctx, "cs_order-1")
	if err != nil {
		t.Fatalf("failed to retrieve order by payment id: %v", err)
	}
	if byPayment.ID != order.ID {
		t.Errorf("expected %s, got %s", order.ID, byPayment.ID)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryCreateDuplicatePaymentID(t *testing.T) {
	repo := postgres.NewRepository(dbtest.Start(t))
	ctx := context.Background()

	if err := repo.Create(ctx, newOrder("order-1", time.Now())); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	dup := newOrder("order-2", time.Now())
	dup.PaymentID = pointy.String("cs_order-1")
	err := repo.Create(ctx, dup)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestRepositoryTransition(t *testing.T) {
	repo := postgres.NewRepository(dbtest.Start(t))
	ctx := context.Background()

	order := newOrder("order-1", time.Now())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	pending := domain.StatusPending
	details := "manual check #44"
	updated, err := repo.Transition(ctx, order.ID, &pending, domain.StatusCompleted, domain.OrderPatch{TransactionDetails: &details})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if updated.TransactionDetails == nil || *updated.TransactionDetails != details {
		t.Errorf("expected transaction details %q, got %v", details, updated.TransactionDetails)
	}
	if !updated.UpdatedAt.After(order.UpdatedAt) {
		t.Errorf("expected updated_at to move forward")
	}

	if _, err := repo.Transition(ctx, order.ID, &pending, domain.StatusCancelled, domain.OrderPatch{}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if _, err := repo.Transition(ctx, "missing", &pending, domain.StatusCancelled, domain.OrderPatch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	completed := domain.StatusCompleted
	other := "overwritten"
	refunded, err := repo.Transition(ctx, order.ID, &completed, domain.StatusRefunded, domain.OrderPatch{
		TransactionDetails: &other,
		RefundReason:       pointy.String("requested"),
		RefundMode:         pointy.String(domain.RefundModeProvider),
	})
	if err != nil {
		t.Fatalf("refund transition failed: %v", err)
	}
	if *refunded.TransactionDetails != details {
		t.Errorf("transaction details must be write-once, got %q", *refunded.TransactionDetails)
	}
	if refunded.RefundReason == nil || *refunded.RefundReason != "requested" {
		t.Errorf("expected refund reason, got %v", refunded.RefundReason)
	}
}

func TestRepositoryConcurrentTransitionsHaveOneWinner(t *testing.T) {
	repo := postgres.NewRepository(dbtest.Start(t))
	ctx := context.Background()

	order := newOrder("order-1", time.Now())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pending := domain.StatusPending
			_, err := repo.Transition(ctx, order.ID, &pending, domain.StatusCompleted, domain.OrderPatch{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || conflicts != workers-1 {
		t.Errorf("expected 1 winner and %d conflicts, got %d and %d", workers-1, winners, conflicts)
	}
}

func TestRepositoryList(t *testing.T) {
	repo := postgres.NewRepository(dbtest.Start(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 12 {
		order := newOrder(fmt.Sprintf("order-%02d", i), base.Add(time.Duration(i)*time.Hour))
		if i%2 == 0 {
			order.UserID = "user-2"
		}
		if i == 5 {
			order.PaymentMethod = domain.MethodBankTransfer
			order.PaymentID = nil
			order.Reference = pointy.String("BT-20240101-ABC_DEF")
			order.Status = domain.StatusAwaitingPayment
		}
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    ports.ListFilter
		wantTotal int
		wantLen   int
		wantFirst string
	}{
		{name: "first page newest first", filter: ports.ListFilter{}, wantTotal: 12, wantLen: 10, wantFirst: "order-11"},
		{name: "second page", filter: ports.ListFilter{Page: 2}, wantTotal: 12, wantLen: 2, wantFirst: "order-01"},
		{name: "by user", filter: ports.ListFilter{UserID: pointy.String("user-2")}, wantTotal: 6, wantLen: 6, wantFirst: "order-10"},
		{name: "by status", filter: ports.ListFilter{Status: statusPtr(domain.StatusAwaitingPayment)}, wantTotal: 1, wantLen: 1, wantFirst: "order-05"},
		{name: "search reference case-insensitive", filter: ports.ListFilter{Search: pointy.String("abc_def")}, wantTotal: 1, wantLen: 1, wantFirst: "order-05"},
		{name: "search id", filter: ports.ListFilter{Search: pointy.String("ORDER-0")}, wantTotal: 10, wantLen: 10, wantFirst: "order-09"},
		{name: "underscore is literal", filter: ports.ListFilter{Search: pointy.String("order_0")}, wantTotal: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("expected total %d, got %d", tt.wantTotal, page.Total)
			}
			if len(page.Orders) != tt.wantLen {
				t.Fatalf("expected %d orders, got %d", tt.wantLen, len(page.Orders))
			}
			if tt.wantLen > 0 && page.Orders[0].ID != tt.wantFirst {
				t.Errorf("expected first order %s, got %s", tt.wantFirst, page.Orders[0].ID)
			}
		})
	}
}

func TestRepositoryStaleAndStatistics(t *testing.T) {
	repo := postgres.NewRepository(dbtest.Start(t))
	ctx := context.Background()
	now := time.Now().UTC()

	old := newOrder("old", now.Add(-3*time.Hour))
	fresh := newOrder("fresh", now)
	bank := newOrder("bank", now.Add(-3*time.Hour))
	bank.PaymentMethod = domain.MethodBankTransfer
	bank.PaymentID = nil
	paid := newOrder("paid", now.Add(-time.Hour))
	paid.Status = domain.StatusCompleted
	paid.Amount = decimal.RequireFromString("19.90")

	for _, o := range []domain.Order{old, fresh, bank, paid} {
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
	}

	stale, err := repo.ListStalePending(ctx, now.Add(-time.Hour), []domain.PaymentMethod{domain.MethodCard, domain.MethodWallet})
	if err != nil {
		t.Fatalf("ListStalePending failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "old" {
		t.Errorf("expected only the old card order, got %+v", stale)
	}

	totals, err := repo.CompletedTotals(ctx)
	if err != nil {
		t.Fatalf("CompletedTotals failed: %v", err)
	}
	if totals.Count != 1 || !totals.Revenue.Equal(decimal.RequireFromString("19.90")) {
		t.Errorf("unexpected totals: %+v", totals)
	}

	completed, err := repo.ListCompletedSince(ctx, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("ListCompletedSince failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "paid" {
		t.Errorf("expected the paid order, got %+v", completed)
	}
}

func TestTransitionAndGrantShareTransaction(t *testing.T) {
	pg := dbtest.Start(t)
	repo := postgres.NewRepository(pg)
	entitlements := postgres.NewEntitlementRepository(pg)
	ctx := context.Background()

	order := newOrder("order-1", time.Now())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	boom := errors.New("grant failed")
	err := pg.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		pending := domain.StatusPending
		if _, err := repo.Transition(ctx, order.ID, &pending, domain.StatusCompleted, domain.OrderPatch{}); err != nil {
			return err
		}
		if err := entitlements.Grant(ctx, domain.NewEntitlement(order.UserID, order.CourseID, time.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	stored, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if stored.Status != domain.StatusPending {
		t.Errorf("expected rollback to keep order pending, got %s", stored.Status)
	}
	owned, err := entitlements.Has(ctx, order.UserID, order.CourseID)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if owned {
		t.Error("expected rollback to drop the entitlement")
	}
}

func TestEntitlementRepository(t *testing.T) {
	repo := postgres.NewEntitlementRepository(dbtest.Start(t))
	ctx := context.Background()
	purchased := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for range 2 {
		if err := repo.Grant(ctx, domain.NewEntitlement("user-1", "course-1", purchased)); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
	}

	list, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(list) != 1 || list[0].Progress != 0 || !list[0].PurchasedAt.Equal(purchased) {
		t.Errorf("expected a single fresh entitlement, got %+v", list)
	}

	for range 2 {
		if err := repo.Revoke(ctx, "user-1", "course-1"); err != nil {
			t.Fatalf("Revoke failed: %v", err)
		}
	}
	if owned, _ := repo.Has(ctx, "user-1", "course-1"); owned {
		t.Error("expected entitlement to be revoked")
	}
}

func TestCatalogAndUsers(t *testing.T) {
	pg := dbtest.Start(t)
	ctx := context.Background()
	seed(t, pg,
		`INSERT INTO courses (id, title, price, discount_price, published) VALUES ('course-1', 'Go', 49.00, 29.00, TRUE)`,
		`INSERT INTO users (id, name, email, role) VALUES ('user-1', 'Ada', 'ada@example.com', 'admin'), ('user-2', 'Bob', 'bob@example.com', 'user')`,
	)

	course, err := postgres.NewCatalog(pg).GetCourse(ctx, "course-1")
	if err != nil {
		t.Fatalf("GetCourse failed: %v", err)
	}
	if !course.EffectivePrice().Equal(decimal.RequireFromString("29")) || !course.Published {
		t.Errorf("unexpected course: %+v", course)
	}
	if _, err := postgres.NewCatalog(pg).GetCourse(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	users := postgres.NewUserDirectory(pg)
	user, err := users.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Role != domain.RoleAdmin || user.Email != "ada@example.com" {
		t.Errorf("unexpected user: %+v", user)
	}
	count, err := users.CountUsers(ctx)
	if err != nil || count != 2 {
		t.Errorf("expected 2 users, got %d (%v)", count, err)
	}
}

func seed(t *testing.T, pg *database.Postgres, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := pg.Pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
}

func statusPtr(s domain.OrderStatus) *domain.OrderStatus {
	return &s
}
