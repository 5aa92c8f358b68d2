package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
)

// Ensure implementation satisfies interface at compile time.
var _ RejectPublisher = (*DLQPublisher)(nil)

// DLQEvent represents a message published to the dead letter queue.
type DLQEvent struct {
	OriginalValue     []byte    `json:"original_value"`
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	FailureReason     string    `json:"failure_reason"`
	FailureTimestamp  time.Time `json:"failure_timestamp"`
	ProcessorID       string    `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// Validate checks the DLQ configuration.
func (c DLQConfig) Validate() error {
	if c.Enabled && c.TopicSuffix == "" {
		return fmt.Errorf("topic suffix is required when DLQ is enabled")
	}
	return nil
}

// DLQPublisher publishes rejected messages to a dead letter topic named
// after the original topic plus TopicSuffix.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	mu          sync.RWMutex
	closed      bool
	processorID string
	now         func() time.Time
}

// NewDLQPublisher creates a new DLQ publisher. A disabled config yields a
// publisher whose Publish is a no-op.
func NewDLQPublisher(
	bootstrapServers []string,
	security SecurityConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	processorID string,
) (*DLQPublisher, error) {
	if err := dlqConfig.Validate(); err != nil {
		return nil, err
	}
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, processorID), nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	if err := configureSecurity(saramaConfig, security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(bootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", bootstrapServers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)
	return newDLQPublisher(producer, dlqConfig, logger, processorID), nil
}

func newDLQPublisher(producer sarama.SyncProducer, config DLQConfig, logger *slog.Logger, processorID string) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      config,
		logger:      logger,
		processorID: processorID,
		now:         time.Now,
	}
}

// Publish publishes a rejected message to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, msg *sarama.ConsumerMessage, reason string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperrors.ErrSourceClosed
	}
	if !p.config.Enabled || p.producer == nil {
		p.logger.Debug("DLQ disabled, skipping publish")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dlqTopic := msg.Topic + p.config.TopicSuffix
	dlqData, err := json.Marshal(DLQEvent{
		OriginalValue:     msg.Value,
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		FailureReason:     reason,
		FailureTimestamp:  p.now().UTC(),
		ProcessorID:       p.processorID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ event: %w", err)
	}

	out := &sarama.ProducerMessage{
		Topic: dlqTopic,
		Value: sarama.ByteEncoder(dlqData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(reason)},
			{Key: []byte("original_topic"), Value: []byte(msg.Topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: p.now(),
	}
	if msg.Key != nil {
		out.Key = sarama.ByteEncoder(msg.Key)
	}

	partition, offset, err := p.producer.SendMessage(out)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", dlqTopic,
			"original_offset", msg.Offset,
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	p.logger.Info("published message to DLQ",
		"dlq_topic", dlqTopic,
		"partition", partition,
		"offset", offset,
		"reason", reason,
	)
	return nil
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}
	p.logger.Info("DLQ publisher closed")
	return nil
}
