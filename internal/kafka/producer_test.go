package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMockProducer(t *testing.T) (*mocks.AsyncProducer, *Producer, *Metrics, func() metricdata.ResourceMetrics) {
	t.Helper()
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	mock := mocks.NewAsyncProducer(t, cfg)
	metrics, collect := newTestMetrics(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mock, NewProducerFrom(mock, logger, metrics), metrics, collect
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:            "order-1",
		UserID:        "user-1",
		CourseID:      "course-1",
		Amount:        decimal.RequireFromString("49.00"),
		Currency:      "eur",
		Status:        domain.StatusCompleted,
		PaymentMethod: domain.MethodCard,
	}
}

func expectMessage(t *testing.T, topic, key string, check func(t *testing.T, body []byte)) mocks.MessageChecker {
	return func(msg *sarama.ProducerMessage) error {
		if msg.Topic != topic {
			return fmt.Errorf("expected topic %s, got %s", topic, msg.Topic)
		}
		gotKey, _ := msg.Key.Encode()
		if string(gotKey) != key {
			return fmt.Errorf("expected key %s, got %s", key, gotKey)
		}
		body, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		check(t, body)
		return nil
	}
}

func TestEventBusPublishesOrderEvents(t *testing.T) {
	mock, producer, _, collect := newMockProducer(t)
	cfg := Config{TopicPrefix: "training."}
	bus := NewEventBus(producer, cfg)

	mock.ExpectInputWithMessageCheckerFunctionAndSucceed(expectMessage(t, "training.order.completed", "order-1", func(t *testing.T, body []byte) {
		var event OrderEvent
		assert.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, TopicOrderCompleted, event.Type)
		assert.Equal(t, "completed", event.Status)
		assert.Equal(t, "49", event.Amount.String())
		assert.NotEmpty(t, event.EventID)
	}))
	mock.ExpectInputWithMessageCheckerFunctionAndSucceed(expectMessage(t, "training.payment.failed", "pay_1", func(t *testing.T, body []byte) {
		var event PaymentFailedEvent
		assert.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, "wallet", event.Provider)
	}))

	require.NoError(t, bus.PublishOrderCompleted(context.Background(), sampleOrder()))
	require.NoError(t, bus.PublishPaymentFailed(context.Background(), domain.PaymentEvent{
		Provider:  domain.MethodWallet,
		PaymentID: "pay_1",
		Outcome:   domain.OutcomeFailed,
	}))
	require.NoError(t, producer.Close())

	assert.Equal(t, int64(2), deliveries(collect(), "success"))
}

func TestNotifierPublishesToNotificationsTopic(t *testing.T) {
	mock, producer, _, _ := newMockProducer(t)
	notifier := NewNotifier(producer, Config{TopicPrefix: "training."})

	mock.ExpectInputWithMessageCheckerFunctionAndSucceed(expectMessage(t, "training.notifications", "user-1", func(t *testing.T, body []byte) {
		var n Notification
		assert.NoError(t, json.Unmarshal(body, &n))
		assert.Equal(t, "order_confirmation", n.Template)
		assert.Equal(t, "order-1", n.Data["order_id"])
	}))

	require.NoError(t, notifier.Notify(context.Background(), "user-1", "order_confirmation", map[string]any{"order_id": "order-1"}))
	require.NoError(t, producer.Close())
}

func TestProducerReportsFailedDeliveries(t *testing.T) {
	mock, producer, _, collect := newMockProducer(t)
	bus := NewEventBus(producer, Config{})

	mock.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	require.NoError(t, bus.PublishOrderCreated(context.Background(), sampleOrder()))
	require.NoError(t, producer.Close())

	assert.Equal(t, int64(1), deliveries(collect(), "error"))
}

func TestConfigTopicsAndBrokers(t *testing.T) {
	cfg := Config{Brokers: ParseBrokers(" kafka-1:9092, ,kafka-2:9092"), TopicPrefix: "prod."}

	assert.True(t, cfg.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, "prod.order.refunded", cfg.Topic(TopicOrderRefunded))
	assert.False(t, Config{}.Enabled())
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(Config{}, slog.Default(), nil)
	assert.Error(t, err)
}

func TestNewSaramaConfig(t *testing.T) {
	cfg, err := newSaramaConfig(Config{Version: "3.6.0", ClientID: "orders"})
	require.NoError(t, err)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, "orders", cfg.ClientID)

	_, err = newSaramaConfig(Config{Version: "not-a-version"})
	assert.Error(t, err)
}

func TestSinceQueuedWithoutMetadata(t *testing.T) {
	assert.Zero(t, sinceQueued(&sarama.ProducerMessage{}))
	assert.Greater(t, sinceQueued(&sarama.ProducerMessage{Metadata: time.Now().Add(-time.Second)}), 0.5)
}
