package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Config selects the brokers and topic namespace for published messages.
type Config struct {
	Brokers     []string
	TopicPrefix string
	Version     string
	ClientID    string
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Topic joins the prefix and name.
func (c Config) Topic(name string) string {
	return c.TopicPrefix + name
}

// Producer publishes JSON messages through a sarama AsyncProducer and reports
// delivery outcomes in the background.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *slog.Logger
	metrics  *Metrics
	wg       sync.WaitGroup
}

func NewProducer(cfg Config, logger *slog.Logger, metrics *Metrics) (*Producer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers list is empty")
	}

	saramaCfg, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewProducerFrom(producer, logger, metrics), nil
}

// NewProducerFrom wraps an existing AsyncProducer. The producer's config must
// return successes and errors.
func NewProducerFrom(producer sarama.AsyncProducer, logger *slog.Logger, metrics *Metrics) *Producer {
	p := &Producer{producer: producer, logger: logger, metrics: metrics}
	p.wg.Add(2)
	go p.drainSuccesses()
	go p.drainErrors()
	return p
}

func newSaramaConfig(cfg Config) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()
	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version: %w", err)
		}
		saramaCfg.Version = version
	}
	if cfg.ClientID != "" {
		saramaCfg.ClientID = cfg.ClientID
	}
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1
	saramaCfg.Producer.Compression = sarama.CompressionSnappy
	return saramaCfg, nil
}

// Send encodes value as JSON and queues it for topic. It only blocks until the
// producer accepts the message or ctx is done.
func (p *Producer) Send(ctx context.Context, topic, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Key:      sarama.StringEncoder(key),
		Value:    sarama.ByteEncoder(payload),
		Metadata: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("Content-Type"), Value: []byte("application/json")},
		},
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "context cancelled before message was queued",
			"topic", topic,
			"key", key,
			"error", ctx.Err(),
		)
		return ctx.Err()
	}
}

func (p *Producer) drainSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.metrics.RecordDelivery(context.Background(), msg.Topic, sinceQueued(msg), true)
	}
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		topic := ""
		var latency float64
		if perr.Msg != nil {
			topic = perr.Msg.Topic
			latency = sinceQueued(perr.Msg)
		}
		p.metrics.RecordDelivery(context.Background(), topic, latency, false)
		p.logger.Error("failed to deliver kafka message",
			"topic", topic,
			"error", perr.Err,
		)
	}
}

func sinceQueued(msg *sarama.ProducerMessage) float64 {
	queued, ok := msg.Metadata.(time.Time)
	if !ok {
		return 0
	}
	return time.Since(queued).Seconds()
}

// Close flushes buffered messages and waits for delivery reports.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	err := p.producer.Close()
	p.wg.Wait()
	if err != nil {
		p.logger.Error("failed to close kafka producer", "error", err)
		return err
	}
	return nil
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
