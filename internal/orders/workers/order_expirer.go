package workers

import (
	"context"
	"log/slog"
	"time"
)

// StaleOrderExpirer cancels unpaid orders older than a cutoff.
type StaleOrderExpirer interface {
	ExpireStaleOrders(ctx context.Context, olderThan time.Duration) (int, error)
}

// OrderExpirer periodically cancels card and wallet orders that were never paid.
type OrderExpirer struct {
	logger   *slog.Logger
	service  StaleOrderExpirer
	ttl      time.Duration
	interval time.Duration
}

func NewOrderExpirer(logger *slog.Logger, service StaleOrderExpirer, ttl, interval time.Duration) *OrderExpirer {
	return &OrderExpirer{
		logger:   logger,
		service:  service,
		ttl:      ttl,
		interval: interval,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (e *OrderExpirer) Start(ctx context.Context) {
	e.logger.InfoContext(ctx, "starting order expirer",
		slog.String("pending_ttl", e.ttl.String()),
		slog.String("interval", e.interval.String()),
	)

	e.sweep(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("order expirer stopped")
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *OrderExpirer) sweep(ctx context.Context) {
	count, err := e.service.ExpireStaleOrders(ctx, e.ttl)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.ErrorContext(ctx, "order sweep failed", slog.String("error", err.Error()))
		}
		return
	}
	if count > 0 {
		e.logger.InfoContext(ctx, "expired stale orders", slog.Int("count", count))
	}
}
