package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestInitializeMetrics(t *testing.T) {
	t.Run("initializes all metric instruments successfully", func(t *testing.T) {
		metrics, _ := newTestMetrics(t)

		if metrics.commandDuration == nil {
			t.Error("commandDuration is nil")
		}
		if metrics.checkoutsTotal == nil {
			t.Error("checkoutsTotal is nil")
		}
		if metrics.paymentEvents == nil {
			t.Error("paymentEvents is nil")
		}
		if metrics.refundsTotal == nil {
			t.Error("refundsTotal is nil")
		}
		if metrics.ordersExpired == nil {
			t.Error("ordersExpired is nil")
		}
	})
}

func TestRecordCheckout(t *testing.T) {
	t.Run("records checkouts per method and status", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)
		ctx := context.Background()

		metrics.RecordCheckout(ctx, "card", true)
		metrics.RecordCheckout(ctx, "card", false)
		metrics.RecordCheckout(ctx, "wallet", true)

		m := collect(t, reader, "checkouts_created_total")
		if m == nil {
			t.Fatal("checkouts_created_total metric not found")
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatal("Expected Sum[int64] data type")
		}
		if len(sum.DataPoints) != 3 {
			t.Errorf("Expected 3 data points, got %d", len(sum.DataPoints))
		}
	})
}

func TestRecordPaymentEvent(t *testing.T) {
	t.Run("separates duplicates from applied events", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)
		ctx := context.Background()

		metrics.RecordPaymentEvent(ctx, "card", "succeeded", "applied")
		metrics.RecordPaymentEvent(ctx, "card", "succeeded", "duplicate")
		metrics.RecordPaymentEvent(ctx, "card", "succeeded", "duplicate")

		m := collect(t, reader, "payment_events_total")
		if m == nil {
			t.Fatal("payment_events_total metric not found")
		}
		sum := m.Data.(metricdata.Sum[int64])
		if len(sum.DataPoints) != 2 {
			t.Fatalf("Expected 2 data points, got %d", len(sum.DataPoints))
		}
		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		if total != 3 {
			t.Errorf("Expected 3 events, got %d", total)
		}
	})
}

func TestRecordCommand(t *testing.T) {
	t.Run("records command duration", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)

		metrics.RecordCommand(context.Background(), "refund", 0.25, true)

		m := collect(t, reader, "order_command_duration_seconds")
		if m == nil {
			t.Fatal("order_command_duration_seconds metric not found")
		}
		hist, ok := m.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatal("Expected Histogram[float64] data type")
		}
		if hist.DataPoints[0].Count != 1 {
			t.Errorf("Expected 1 observation, got %d", hist.DataPoints[0].Count)
		}
	})
}

func TestRecordOrdersExpired(t *testing.T) {
	t.Run("skips empty sweeps", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)
		ctx := context.Background()

		metrics.RecordOrdersExpired(ctx, 0)
		if m := collect(t, reader, "orders_expired_total"); m != nil {
			t.Error("expected no data for empty sweep")
		}

		metrics.RecordOrdersExpired(ctx, 4)
		m := collect(t, reader, "orders_expired_total")
		if m == nil {
			t.Fatal("orders_expired_total metric not found")
		}
		if got := m.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 4 {
			t.Errorf("Expected 4, got %d", got)
		}
	})
}
