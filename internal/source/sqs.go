package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// MetricsCollector defines metrics operations for sources.
type MetricsCollector interface {
	IncMessagesConsumed(source string, partition int32)
	IncMessagesRejected(source, reason string)
	IncSourceErrors(source string)
}

// SQSConfig configures an SQSSource.
type SQSConfig struct {
	QueueURL          string
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
	Pollers           int
	BufferSize        int
}

// DefaultSQSConfig holds long-polling defaults.
var DefaultSQSConfig = SQSConfig{
	WaitTimeSeconds:   20,
	MaxMessages:       10,
	VisibilityTimeout: 30,
	Pollers:           2,
	BufferSize:        64,
}

// Validate checks the SQS configuration.
func (c SQSConfig) Validate() error {
	switch {
	case c.QueueURL == "":
		return fmt.Errorf("queue url is required")
	case c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > 20:
		return fmt.Errorf("wait time seconds must be between 0 and 20")
	case c.MaxMessages < 1 || c.MaxMessages > 10:
		return fmt.Errorf("max messages must be between 1 and 10")
	case c.VisibilityTimeout < 0:
		return fmt.Errorf("visibility timeout must be non-negative")
	case c.Pollers < 1:
		return fmt.Errorf("pollers must be at least 1")
	case c.BufferSize < 1:
		return fmt.Errorf("buffer size must be at least 1")
	}
	return nil
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSSource yields events decoded from structured CloudEvents in SQS message
// bodies. A message is deleted once its event has been returned by Next.
// Messages that cannot be decoded or validated are left on the queue for the
// queue's redrive policy.
//
// The pollers feed a bounded Handoff. A poller error that retrying cannot
// fix, such as a missing queue, stops every poller and is returned by Next
// once the buffered messages are drained.
type SQSSource struct {
	cfg       SQSConfig
	client    sqsAPI
	validator event.Validator
	logger    *slog.Logger
	metrics   MetricsCollector

	handoff *Handoff[*sqstypes.Message]

	closeOnce sync.Once
	cancel    context.CancelFunc
}

var _ rowstream.Source[event.Event] = (*SQSSource)(nil)

// NewSQSSource starts cfg.Pollers long-polling goroutines against client.
// validator and metrics may be nil.
func NewSQSSource(
	ctx context.Context,
	client sqsAPI,
	cfg SQSConfig,
	validator event.Validator,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SQSSource, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sqs config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &SQSSource{
		cfg:       cfg,
		client:    client,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
		handoff:   NewHandoff[*sqstypes.Message](cfg.BufferSize),
		cancel:    cancel,
	}

	g, gctx := errgroup.WithContext(ctx)
	for range cfg.Pollers {
		g.Go(func() error {
			return s.pollLoop(gctx)
		})
	}
	go func() {
		// Every Send has returned once Wait does.
		s.handoff.CloseWithError(g.Wait())
	}()

	logger.Info("sqs source started",
		"queue_url", cfg.QueueURL,
		"pollers", cfg.Pollers,
		"wait_time_seconds", cfg.WaitTimeSeconds,
	)
	return s, nil
}

// pollLoop receives until ctx ends. It returns an error only when the queue
// cannot be read at all.
func (s *SQSSource) pollLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.WaitTimeSeconds+5)*time.Second)
		out, err := s.client.ReceiveMessage(reqCtx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(s.cfg.QueueURL),
			MaxNumberOfMessages:         s.cfg.MaxMessages,
			WaitTimeSeconds:             s.cfg.WaitTimeSeconds,
			VisibilityTimeout:           s.cfg.VisibilityTimeout,
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameSentTimestamp},
		})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if s.metrics != nil {
				s.metrics.IncSourceErrors("sqs")
			}
			var missing *sqstypes.QueueDoesNotExist
			if errors.As(err, &missing) {
				s.logger.Error("sqs queue does not exist", "queue_url", s.cfg.QueueURL, "error", err)
				return fmt.Errorf("sqs receive %s: %w", s.cfg.QueueURL, err)
			}
			s.logger.Warn("sqs receive failed", "error", err)
			select {
			case <-time.After(250 * time.Millisecond):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		for i := range out.Messages {
			if err := s.handoff.Send(ctx, &out.Messages[i]); err != nil {
				return nil
			}
		}
	}
}

// Next returns the next valid event. It returns io.EOF after Close once the
// pollers have stopped.
func (s *SQSSource) Next(ctx context.Context) (event.Event, error) {
	for {
		msg, err := s.handoff.Next(ctx)
		if err != nil {
			return event.Event{}, err
		}

		e, err := s.decode(msg)
		if err != nil {
			reason := "decode"
			if errors.Is(err, apperrors.ErrInvalidEvent) {
				reason = "invalid"
			}
			s.logger.Warn("skipping sqs message",
				"message_id", aws.ToString(msg.MessageId),
				"reason", reason,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.IncMessagesRejected("sqs", reason)
			}
			continue
		}

		s.delete(ctx, msg)
		if s.metrics != nil {
			s.metrics.IncMessagesConsumed("sqs", -1)
		}
		return e, nil
	}
}

func (s *SQSSource) decode(msg *sqstypes.Message) (event.Event, error) {
	origin := "sqs:" + aws.ToString(msg.MessageId)
	ce, err := event.DecodeCloudEvent([]byte(aws.ToString(msg.Body)))
	if err != nil {
		return event.Event{}, &apperrors.DecodeError{Origin: origin, Err: err}
	}
	if s.validator != nil {
		if err := s.validator.Validate(ce); err != nil {
			return event.Event{}, err
		}
	}
	return event.FromCloudEvent(*ce, sentTime(msg)), nil
}

// delete failures are logged; the message is redelivered after its
// visibility timeout and shows up as a duplicate row.
func (s *SQSSource) delete(ctx context.Context, msg *sqstypes.Message) {
	_, err := s.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.cfg.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		s.logger.Error("sqs delete failed",
			"message_id", aws.ToString(msg.MessageId),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncSourceErrors("sqs")
		}
	}
}

// Close stops the pollers. Messages already buffered are still returned by Next.
func (s *SQSSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	return nil
}

func sentTime(msg *sqstypes.Message) time.Time {
	raw, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]
	if !ok {
		return time.Now()
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli(ms).UTC()
}
