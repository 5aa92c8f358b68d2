package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
)

// ProducerMetrics defines metrics operations for the producer.
type ProducerMetrics interface {
	IncEventsProduced(topic, eventType string)
	IncEventsFailed(topic, eventType string)
}

// Producer publishes structured-mode CloudEvents to a Kafka topic. It feeds
// the topics a Consumer reads, typically with generated events.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  ProducerMetrics

	mu     sync.RWMutex
	closed bool
}

// NewProducer creates a producer for topic. metrics may be nil.
func NewProducer(
	bootstrapServers []string,
	security SecurityConfig,
	topic string,
	logger *slog.Logger,
	metrics ProducerMetrics,
) (*Producer, error) {
	if len(bootstrapServers) == 0 {
		return nil, fmt.Errorf("bootstrap servers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	// Idempotent writes require a single in-flight request.
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("kafka producer created",
		"bootstrap_servers", bootstrapServers,
		"topic", topic,
		"security_protocol", security.Protocol,
	)
	return newProducer(producer, topic, logger, metrics), nil
}

func newProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger, metrics ProducerMetrics) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  metrics,
	}
}

// Publish sends ce as JSON keyed by its ID, with ce_ headers for
// binding-aware readers.
func (p *Producer) Publish(ctx context.Context, ce cloudevents.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.ErrSourceClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ce.ID()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(ce.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(ce.Type())},
			{Key: []byte("ce_source"), Value: []byte(ce.Source())},
			{Key: []byte("ce_id"), Value: []byte(ce.ID())},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncEventsFailed(p.topic, ce.Type())
		}
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	if p.metrics != nil {
		p.metrics.IncEventsProduced(p.topic, ce.Type())
	}

	p.logger.Debug("event produced",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"event_id", ce.ID(),
		"event_type", ce.Type(),
	)
	return nil
}

// Close closes the producer. It is safe to call more than once.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}
