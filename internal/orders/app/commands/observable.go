package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/metrics"
	"github.com/K-mel/servicemasterfr/internal/telemetry"
	"go.openly.dev/pointy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ObservableExecutor wraps an Executor with spans, metrics and logs.
type ObservableExecutor struct {
	next    Executor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableExecutor(next Executor, logger *slog.Logger, metrics *metrics.Metrics) *ObservableExecutor {
	return &ObservableExecutor{
		next:    next,
		logger:  logger,
		metrics: metrics,
	}
}

func observe[T any](
	ctx context.Context,
	o *ObservableExecutor,
	command string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context, span trace.Span) (T, error),
) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderCommand."+command)
	defer span.End()
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	result, err := fn(ctx, span)
	o.metrics.RecordCommand(ctx, command, time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "order command failed",
			"command", command,
			"error", err,
		)
		return result, err
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}

func orderAttrs(order *domain.Order) []attribute.KeyValue {
	if order == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
		attribute.String("order.payment_method", string(order.PaymentMethod)),
	}
}

func (o *ObservableExecutor) CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (*CheckoutResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("user.id", cmd.Principal.ID),
		attribute.String("course.id", cmd.CourseID),
		attribute.String("payment.method", cmd.Method),
	}
	return observe(ctx, o, "CreateCheckout", attrs, func(ctx context.Context, span trace.Span) (*CheckoutResult, error) {
		o.logger.InfoContext(ctx, "creating checkout",
			"user_id", cmd.Principal.ID,
			"course_id", cmd.CourseID,
			"payment_method", cmd.Method,
		)

		result, err := o.next.CreateCheckout(ctx, cmd)
		o.metrics.RecordCheckout(ctx, cmd.Method, err == nil)
		if err != nil {
			return nil, err
		}

		telemetry.AddSpanAttributes(span, orderAttrs(&result.Order)...)
		telemetry.AddSpanAttributes(span, attribute.String("order.amount", result.Order.Amount.StringFixed(2)))
		o.logger.InfoContext(ctx, "checkout created",
			"order_id", result.Order.ID,
			"payment_id", result.PaymentID,
			"status", result.Order.Status,
		)
		return result, nil
	})
}

func (o *ObservableExecutor) HandleWebhook(ctx context.Context, cmd HandleWebhookCommand) (*WebhookResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("payment.provider", cmd.Provider),
		attribute.Int("webhook.payload_bytes", len(cmd.Payload)),
	}
	return observe(ctx, o, "HandleWebhook", attrs, func(ctx context.Context, span trace.Span) (*WebhookResult, error) {
		result, err := o.next.HandleWebhook(ctx, cmd)
		if err != nil {
			return nil, err
		}
		telemetry.AddSpanAttributes(span,
			attribute.Bool("webhook.duplicate", result.Duplicate),
			attribute.String("order.id", result.OrderID),
		)
		return result, nil
	})
}

func (o *ObservableExecutor) ApplyPaymentEvent(ctx context.Context, event domain.PaymentEvent) (*ReconcileResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("payment.provider", string(event.Provider)),
		attribute.String("payment.id", event.PaymentID),
		attribute.String("payment.outcome", string(event.Outcome)),
	}
	return observe(ctx, o, "ApplyPaymentEvent", attrs, func(ctx context.Context, span trace.Span) (*ReconcileResult, error) {
		result, err := o.next.ApplyPaymentEvent(ctx, event)

		effect := "applied"
		switch {
		case err != nil:
			effect = "error"
		case result.Duplicate:
			effect = "duplicate"
		case result.Ignored:
			effect = "ignored"
		}
		o.metrics.RecordPaymentEvent(ctx, string(event.Provider), string(event.Outcome), effect)

		if err != nil {
			return nil, err
		}
		telemetry.AddSpanAttributes(span, attribute.String("reconcile.effect", effect))
		telemetry.AddSpanAttributes(span, orderAttrs(result.Order)...)
		o.logger.InfoContext(ctx, "payment event reconciled",
			"payment_id", event.PaymentID,
			"outcome", event.Outcome,
			"effect", effect,
		)
		return result, nil
	})
}

func (o *ObservableExecutor) CaptureWalletPayment(ctx context.Context, cmd CaptureWalletPaymentCommand) (*domain.Order, error) {
	attrs := []attribute.KeyValue{attribute.String("payment.id", cmd.PaymentID)}
	return observe(ctx, o, "CaptureWalletPayment", attrs, func(ctx context.Context, span trace.Span) (*domain.Order, error) {
		order, err := o.next.CaptureWalletPayment(ctx, cmd)
		if err != nil {
			return nil, err
		}
		telemetry.AddSpanAttributes(span, orderAttrs(order)...)
		return order, nil
	})
}

func (o *ObservableExecutor) ConfirmBankTransfer(ctx context.Context, cmd ConfirmBankTransferCommand) (*domain.Order, error) {
	attrs := []attribute.KeyValue{attribute.String("order.id", cmd.OrderID)}
	return observe(ctx, o, "ConfirmBankTransfer", attrs, func(ctx context.Context, span trace.Span) (*domain.Order, error) {
		order, err := o.next.ConfirmBankTransfer(ctx, cmd)
		if err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "bank transfer confirmed",
			"order_id", order.ID,
			"admin_id", cmd.Principal.ID,
		)
		return order, nil
	})
}

func (o *ObservableExecutor) SetStatus(ctx context.Context, cmd SetStatusCommand) (*domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", cmd.Status),
	}
	return observe(ctx, o, "SetStatus", attrs, func(ctx context.Context, span trace.Span) (*domain.Order, error) {
		order, err := o.next.SetStatus(ctx, cmd)
		if err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "order status set by admin",
			"order_id", order.ID,
			"status", order.Status,
			"admin_id", cmd.Principal.ID,
		)
		return order, nil
	})
}

func (o *ObservableExecutor) Refund(ctx context.Context, cmd RefundCommand) (*domain.Order, error) {
	attrs := []attribute.KeyValue{attribute.String("order.id", cmd.OrderID)}
	return observe(ctx, o, "Refund", attrs, func(ctx context.Context, span trace.Span) (*domain.Order, error) {
		order, err := o.next.Refund(ctx, cmd)
		if err != nil {
			o.metrics.RecordRefund(ctx, "unknown", false)
			return nil, err
		}
		o.metrics.RecordRefund(ctx, string(order.PaymentMethod), true)
		telemetry.AddSpanAttributes(span, orderAttrs(order)...)
		o.logger.InfoContext(ctx, "order refunded",
			"order_id", order.ID,
			"refund_mode", pointy.StringValue(order.RefundMode, ""),
			"admin_id", cmd.Principal.ID,
		)
		return order, nil
	})
}

func (o *ObservableExecutor) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error) {
	attrs := []attribute.KeyValue{attribute.String("order.id", cmd.OrderID)}
	return observe(ctx, o, "CancelOrder", attrs, func(ctx context.Context, span trace.Span) (*domain.Order, error) {
		return o.next.CancelOrder(ctx, cmd)
	})
}

func (o *ObservableExecutor) ExpireStaleOrders(ctx context.Context, cmd ExpireStaleOrdersCommand) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("expiry.older_than", cmd.OlderThan.String())}
	return observe(ctx, o, "ExpireStaleOrders", attrs, func(ctx context.Context, span trace.Span) (int, error) {
		n, err := o.next.ExpireStaleOrders(ctx, cmd)
		if err != nil {
			return 0, err
		}
		o.metrics.RecordOrdersExpired(ctx, n)
		telemetry.AddSpanAttributes(span, attribute.Int("orders.expired", n))
		return n, nil
	})
}
