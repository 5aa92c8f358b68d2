// Package kafka implements a Kafka-backed event source and dead letter publishing.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/internal/source"
	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ rowstream.Source[event.Event] = (*Consumer)(nil)
	_ sarama.ConsumerGroupHandler   = (*consumerGroupHandler)(nil)
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	Topics              []string
	Security            SecurityConfig
	AutoOffsetReset     string
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	MaxPollIntervalMS   int
	// BufferSize bounds the events decoded ahead of the stream.
	BufferSize int
}

// Validate checks the consumer configuration.
func (c ConsumerConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("bootstrap servers are required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group id is required")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	return nil
}

// MetricsCollector defines metrics operations for Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(source string, partition int32)
	IncMessagesRejected(source, reason string)
	IncRebalances(groupID string)
	SetPartitionsAssigned(topic string, count float64)
	IncSourceErrors(source string)
}

// RejectPublisher receives messages the consumer skips.
type RejectPublisher interface {
	Publish(ctx context.Context, msg *sarama.ConsumerMessage, reason string) error
}

// Consumer is a rowstream source of events read from a Kafka consumer group.
//
// Messages are decoded as structured-mode CloudEvents and validated. A
// message's offset is marked when Next hands its event to the caller, so
// events still queued at Close are not committed and are redelivered.
// Rejected messages go to the RejectPublisher when one is configured and are
// marked once Next passes over them, keeping marks in partition order.
type Consumer struct {
	group     sarama.ConsumerGroup
	config    ConsumerConfig
	validator event.Validator
	rejects   RejectPublisher
	logger    *slog.Logger
	metrics   MetricsCollector

	handoff *source.Handoff[delivery]

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewConsumer creates a consumer group client. Call Start to begin consuming.
// validator, rejects and metrics may be nil.
func NewConsumer(
	config ConsumerConfig,
	validator event.Validator,
	rejects RejectPublisher,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Consumer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	saramaConfig, err := newSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"topics", config.Topics,
		"bootstrap_servers", config.BootstrapServers,
		"security_protocol", config.Security.Protocol,
	)

	return newConsumer(group, config, validator, rejects, logger, metrics), nil
}

func newConsumer(
	group sarama.ConsumerGroup,
	config ConsumerConfig,
	validator event.Validator,
	rejects RejectPublisher,
	logger *slog.Logger,
	metrics MetricsCollector,
) *Consumer {
	if config.BufferSize < 1 {
		config.BufferSize = 100
	}
	return &Consumer{
		group:     group,
		config:    config,
		validator: validator,
		rejects:   rejects,
		logger:    logger,
		metrics:   metrics,
		handoff:   source.NewHandoff[delivery](config.BufferSize),
		done:      make(chan struct{}),
	}
}

func newSaramaConfig(config ConsumerConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}
	// A slow stream consumer must not trigger a rebalance.
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	if err := configureSecurity(saramaConfig, config.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	if err := saramaConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	return saramaConfig, nil
}

// Start joins the consumer group in the background. It returns
// errors.ErrSourceClosed if the consumer was closed or already started.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.started {
		return apperrors.ErrSourceClosed
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	handler := &consumerGroupHandler{consumer: c}

	go c.drainErrors(ctx)
	go func() {
		defer close(c.done)
		c.consumeLoop(ctx, handler)
	}()

	c.logger.Info("kafka consumer started", "topics", c.config.Topics)
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, handler sarama.ConsumerGroupHandler) {
	for {
		// Consume returns on every rebalance and must be called again.
		err := c.group.Consume(ctx, c.config.Topics, handler)
		if ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
			c.handoff.Close()
			return
		}
		if err != nil {
			c.logger.Error("consumer group error", "error", err)
			if c.metrics != nil {
				c.metrics.IncSourceErrors("kafka")
			}
			if errors.Is(err, sarama.ErrOutOfBrokers) || errors.Is(err, sarama.ErrNotConnected) {
				err = fmt.Errorf("%w: %w", apperrors.ErrConnectionLost, err)
			}
			c.handoff.CloseWithError(fmt.Errorf("kafka consume: %w", err))
			return
		}
	}
}

func (c *Consumer) drainErrors(ctx context.Context) {
	errs := c.group.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.logger.Warn("kafka consumer error", "error", err)
			if c.metrics != nil {
				c.metrics.IncSourceErrors("kafka")
			}
		case <-ctx.Done():
			return
		}
	}
}

// delivery is a message queued for the stream. Rejected messages are queued
// too, with skip set, so that their offsets are not marked ahead of earlier
// events.
type delivery struct {
	event   event.Event
	message *sarama.ConsumerMessage
	session sarama.ConsumerGroupSession
	skip    bool
}

// Next returns the next event and marks its offset. After Close it returns
// io.EOF; queued events stay unmarked.
func (c *Consumer) Next(ctx context.Context) (event.Event, error) {
	for {
		d, err := c.handoff.Next(ctx)
		if errors.Is(err, source.ErrAbandoned) {
			return event.Event{}, io.EOF
		}
		if err != nil {
			return event.Event{}, err
		}

		// Marks on a session that has ended are ignored by sarama; the
		// partition's new owner then redelivers the message.
		d.session.MarkMessage(d.message, "")
		if d.skip {
			continue
		}
		if c.metrics != nil {
			c.metrics.IncMessagesConsumed("kafka", d.message.Partition)
		}
		return d.event, nil
	}
}

// Close leaves the consumer group and ends the stream.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	// Stop handing out queued events before the group commits on close.
	c.handoff.Abandon()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.logger.Info("closing kafka consumer")
	err := c.group.Close()
	if started {
		<-c.done
	} else {
		c.handoff.Close()
	}
	if err != nil {
		c.logger.Error("error closing consumer group", "error", err)
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer *Consumer
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	c := h.consumer
	c.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	if c.metrics != nil {
		c.metrics.IncRebalances(c.config.GroupID)
		for topic, partitions := range session.Claims() {
			c.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from a partition.
func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	c := h.consumer
	c.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.handle(session, message) {
				return nil
			}

		case <-session.Context().Done():
			c.logger.Info("session context done, stopping partition consumption",
				"topic", claim.Topic(),
				"partition", claim.Partition(),
			)
			return nil
		}
	}
}

// handle reports false when the session ended before the event was queued.
func (h *consumerGroupHandler) handle(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) bool {
	c := h.consumer
	c.logger.Debug("received kafka message",
		"topic", message.Topic,
		"partition", message.Partition,
		"offset", message.Offset,
		"value_size", len(message.Value),
	)

	d := delivery{message: message, session: session}
	e, err := c.decode(message)
	if err != nil {
		h.reject(session, message, err)
		d.skip = true
	} else {
		d.event = e
	}

	return c.handoff.Send(session.Context(), d) == nil
}

func (h *consumerGroupHandler) reject(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage, err error) {
	c := h.consumer
	reason := "decode"
	if errors.Is(err, apperrors.ErrInvalidEvent) {
		reason = "invalid"
	}

	c.logger.Warn("skipping kafka message",
		"topic", message.Topic,
		"partition", message.Partition,
		"offset", message.Offset,
		"reason", reason,
		"error", err,
	)
	if c.metrics != nil {
		c.metrics.IncMessagesRejected("kafka", reason)
	}
	if c.rejects != nil {
		if pubErr := c.rejects.Publish(session.Context(), message, err.Error()); pubErr != nil {
			c.logger.Error("failed to publish rejected message", "error", pubErr, "offset", message.Offset)
		}
	}
}

func (c *Consumer) decode(message *sarama.ConsumerMessage) (event.Event, error) {
	ce, err := event.DecodeCloudEvent(message.Value)
	if err != nil {
		pid := event.PartitionID{Topic: message.Topic, Partition: message.Partition}
		return event.Event{}, &apperrors.DecodeError{
			Origin: fmt.Sprintf("%s@%d", pid, message.Offset),
			Err:    err,
		}
	}
	if c.validator != nil {
		if err := c.validator.Validate(ce); err != nil {
			return event.Event{}, err
		}
	}
	return event.FromCloudEvent(*ce, message.Timestamp), nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
