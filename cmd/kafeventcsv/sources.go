package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jittakal/kafeventcsv/internal/config/dto"
	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/internal/kafka"
	"github.com/jittakal/kafeventcsv/internal/observability"
	"github.com/jittakal/kafeventcsv/internal/server"
	"github.com/jittakal/kafeventcsv/internal/source"
	"github.com/jittakal/kafeventcsv/internal/validator"
)

// newOpener returns the opener for the configured source kind. Every Open
// starts an independent source: a fresh generator, a consumer group member
// or a set of SQS pollers.
func newOpener(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	logger *slog.Logger,
	metrics *observability.Metrics,
	addCleanup func(string, func() error),
) (server.Opener, error) {
	v := validator.NewCloudEventsValidator(validator.WithTypePrefixes(cfg.Source.TypePrefixes...))

	switch cfg.Source.Kind {
	case dto.SourceGenerator:
		genConfig := generatorConfig(cfg)
		return server.OpenerFunc(func(ctx context.Context) (server.EventSource, error) {
			return server.NopCloser(source.NewGenerator(genConfig, logger)), nil
		}), nil

	case dto.SourceKafka:
		consumerConfig := kafkaConsumerConfig(cfg)
		if err := consumerConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid kafka config: %w", err)
		}

		dlqPublisher, err := kafka.NewDLQPublisher(
			consumerConfig.BootstrapServers,
			consumerConfig.Security,
			kafka.DLQConfig{
				Enabled:     cfg.Source.Kafka.DLQ.Enabled,
				TopicSuffix: cfg.Source.Kafka.DLQ.TopicSuffix,
			},
			logger,
			cfg.Application.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create DLQ publisher: %w", err)
		}
		addCleanup("dlq-publisher", dlqPublisher.Close)

		return server.OpenerFunc(func(ctx context.Context) (server.EventSource, error) {
			consumer, err := kafka.NewConsumer(consumerConfig, v, dlqPublisher, logger, metrics)
			if err != nil {
				return nil, err
			}
			if err := consumer.Start(ctx); err != nil {
				_ = consumer.Close()
				return nil, err
			}
			return consumer, nil
		}), nil

	case dto.SourceSQS:
		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Source.SQS.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := sqs.NewFromConfig(awsConfig, func(o *sqs.Options) {
			if cfg.Source.SQS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Source.SQS.Endpoint)
			}
		})

		sqsConfig := sqsSourceConfig(cfg)
		if err := sqsConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid sqs config: %w", err)
		}

		return server.OpenerFunc(func(ctx context.Context) (server.EventSource, error) {
			src, err := source.NewSQSSource(ctx, client, sqsConfig, v, logger, metrics)
			if err != nil {
				return nil, err
			}
			return src, nil
		}), nil

	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownSource, cfg.Source.Kind)
	}
}

func generatorConfig(cfg *dto.ApplicationConfig) source.GeneratorConfig {
	return source.GeneratorConfig{
		Interval:    cfg.Source.Generator.Interval(),
		Count:       cfg.Source.Generator.Count,
		ReturnRatio: cfg.Source.Generator.ReturnRatio,
	}
}

func kafkaConsumerConfig(cfg *dto.ApplicationConfig) kafka.ConsumerConfig {
	k := cfg.Source.Kafka
	return kafka.ConsumerConfig{
		BootstrapServers: k.BootstrapServers,
		GroupID:          k.Consumer.GroupID,
		Topics:           k.Consumer.Topics,
		Security: kafka.SecurityConfig{
			Protocol:           k.SecurityProtocol,
			SASLMechanism:      k.SASLMechanism,
			SASLUsername:       k.SASLUsername,
			SASLPassword:       k.SASLPassword,
			AWSRegion:          k.AWSRegion,
			InsecureSkipVerify: k.InsecureSkipVerify,
		},
		AutoOffsetReset:     k.Consumer.AutoOffsetReset,
		SessionTimeoutMS:    k.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: k.Consumer.HeartbeatIntervalMS,
		MaxPollIntervalMS:   k.Consumer.MaxPollIntervalMS,
		BufferSize:          k.BufferSize,
	}
}

func sqsSourceConfig(cfg *dto.ApplicationConfig) source.SQSConfig {
	s := cfg.Source.SQS
	return source.SQSConfig{
		QueueURL:          s.QueueURL,
		WaitTimeSeconds:   s.WaitTimeSeconds,
		MaxMessages:       s.MaxMessages,
		VisibilityTimeout: s.VisibilityTimeout,
		Pollers:           s.Pollers,
		BufferSize:        s.BufferSize,
	}
}
