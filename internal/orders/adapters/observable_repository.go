package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/K-mel/servicemasterfr/internal/database"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/K-mel/servicemasterfr/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrderStore is the persistence surface the service layer depends on.
type OrderStore interface {
	ports.OrderRepository
	ports.StatisticsReader
}

// ObservableRepository adds spans and query metrics around an OrderStore.
type ObservableRepository struct {
	repo    OrderStore
	metrics *database.Metrics
}

func NewObservableRepository(repo OrderStore, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

// finish ends a store span. Not-found and conflict outcomes are part of normal
// control flow and are not counted as failures.
func (r *ObservableRepository) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	failed := err
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		failed = nil
		telemetry.AddSpanEvent(span, "expected_outcome", attribute.String("outcome", err.Error()))
	}
	r.metrics.RecordQuery(ctx, operation, start, failed)

	if failed != nil {
		telemetry.RecordSpanError(span, failed)
		return
	}
	telemetry.SetSpanSuccess(span)
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Create")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
		attribute.String("operation", "create"),
	)

	start := time.Now()
	err := r.repo.Create(ctx, order)
	r.finish(ctx, span, "create_order", start, err)
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", id),
		attribute.String("operation", "get_by_id"),
	)

	start := time.Now()
	order, err := r.repo.GetByID(ctx, id)
	r.finish(ctx, span, "get_order_by_id", start, err)
	return order, err
}

func (r *ObservableRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.GetByPaymentID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("payment.id", paymentID),
		attribute.String("operation", "get_by_payment_id"),
	)

	start := time.Now()
	order, err := r.repo.GetByPaymentID(ctx, paymentID)
	r.finish(ctx, span, "get_order_by_payment_id", start, err)
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) (ports.OrderPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.List")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.Search != nil {
		attrs = append(attrs, attribute.Bool("filter.search", true))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	page, err := r.repo.List(ctx, filter)
	if err == nil {
		telemetry.AddSpanAttributes(span, attribute.Int("result.total", page.Total))
	}
	r.finish(ctx, span, "list_orders", start, err)
	return page, err
}

func (r *ObservableRepository) Transition(
	ctx context.Context,
	id string,
	expected *domain.OrderStatus,
	next domain.OrderStatus,
	patch domain.OrderPatch,
) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Transition")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("order.id", id),
		attribute.String("order.next_status", string(next)),
		attribute.String("operation", "transition"),
	}
	if expected != nil {
		attrs = append(attrs, attribute.String("order.expected_status", string(*expected)))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	order, err := r.repo.Transition(ctx, id, expected, next, patch)
	r.finish(ctx, span, "transition_order", start, err)
	return order, err
}

func (r *ObservableRepository) ListStalePending(ctx context.Context, olderThan time.Time, methods []domain.PaymentMethod) ([]domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.ListStalePending")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("operation", "list_stale_pending"),
		attribute.String("older_than", olderThan.Format(time.RFC3339)),
	)

	start := time.Now()
	orders, err := r.repo.ListStalePending(ctx, olderThan, methods)
	r.finish(ctx, span, "list_stale_orders", start, err)
	return orders, err
}

func (r *ObservableRepository) CompletedTotals(ctx context.Context) (ports.CompletedTotals, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.CompletedTotals")
	defer span.End()

	start := time.Now()
	totals, err := r.repo.CompletedTotals(ctx)
	r.finish(ctx, span, "completed_totals", start, err)
	return totals, err
}

func (r *ObservableRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.ListCompletedSince")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("since", since.Format(time.RFC3339)))

	start := time.Now()
	orders, err := r.repo.ListCompletedSince(ctx, since)
	r.finish(ctx, span, "list_completed_orders", start, err)
	return orders, err
}
