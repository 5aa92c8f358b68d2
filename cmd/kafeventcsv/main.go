package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafeventcsv/internal/config"
	"github.com/jittakal/kafeventcsv/internal/config/dto"
	"github.com/jittakal/kafeventcsv/internal/export"
	"github.com/jittakal/kafeventcsv/internal/kafka"
	"github.com/jittakal/kafeventcsv/internal/observability"
	"github.com/jittakal/kafeventcsv/internal/server"
	"github.com/jittakal/kafeventcsv/internal/source"
	"github.com/jittakal/kafeventcsv/internal/storage"
	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// Run modes.
const (
	modeServe   = "serve"
	modeExport  = "export"
	modePrint   = "print"
	modeProduce = "produce"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	mode := flag.String("mode", modeServe, "run mode: serve, export, print or produce")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting kafeventcsv",
		"mode", *mode,
		"source", cfg.Source.Kind,
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Track cleanup functions, run in reverse order
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	// produce feeds the configured Kafka topic and reads no source.
	if *mode == modeProduce {
		return runProduce(ctx, cfg, metrics, logger)
	}

	opener, err := newOpener(ctx, cfg, logger, metrics, addCleanup)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	switch *mode {
	case modeServe:
		return serve(ctx, cfg, opener, registry, metrics, logger)
	case modeExport:
		return runExport(ctx, cfg, opener, metrics, logger, addCleanup)
	case modePrint:
		return runPrint(ctx, cfg, opener, os.Stdout, logger)
	default:
		return fmt.Errorf("unsupported mode: %s (supported: serve, export, print, produce)", *mode)
	}
}

func serve(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	opener server.Opener,
	registry *prometheus.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
) error {
	health := server.NewHealth()
	health.SetCheck("source", cfg.Source.Kind)

	serverConfig := server.Config{
		Port:          cfg.Server.Port,
		MetricsPort:   cfg.Observability.Metrics.Port,
		StreamPath:    cfg.Server.StreamPath,
		LivenessPath:  cfg.Observability.Health.LivenessPath,
		ReadinessPath: cfg.Observability.Health.ReadinessPath,
	}
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	httpServer := server.NewServer(serverConfig, health, opener, registry, metrics, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	health.SetReady(true)
	logger.Info("application started successfully", "stream_path", cfg.Server.StreamPath)

	<-ctx.Done()
	logger.Info("received termination signal")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	logger.Info("application stopped successfully")
	return nil
}

func runExport(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	opener server.Opener,
	metrics *observability.Metrics,
	logger *slog.Logger,
	addCleanup func(string, func() error),
) error {
	exporter, err := storage.New(ctx, storageConfig(cfg), logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}
	addCleanup("exporter", exporter.Close)

	router := storage.NewRouter(
		storage.Protocol(cfg.Storage.Backend),
		storageConfig(cfg).Bucket(),
		cfg.Storage.BasePath(),
	)

	runner, err := export.New(exporter, router, export.Config{
		Header:   cfg.Stream.Header,
		Rotation: policyConfig(cfg),
		Retry:    retryConfig(cfg),
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create export runner: %w", err)
	}

	src, err := opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer closeSource(src, logger)

	res, err := runner.Run(ctx, source.Limit[event.Event](src, cfg.Stream.Limit))
	for _, key := range res.Keys {
		logger.Info("exported object", "location", router.Location(key))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

func runPrint(ctx context.Context, cfg *dto.ApplicationConfig, opener server.Opener, w io.Writer, logger *slog.Logger) error {
	src, err := opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer closeSource(src, logger)

	stream, err := event.NewStream(source.Limit[event.Event](src, cfg.Stream.Limit), cfg.Stream.Header)
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := rowstream.Copy(ctx, w, stream)
	logger.Info("print finished",
		"rows", stream.Stats().Rows,
		"bytes", n,
		"duration", time.Since(start),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("print failed: %w", err)
	}
	return nil
}

func closeSource(src server.EventSource, logger *slog.Logger) {
	if err := src.Close(); err != nil {
		logger.Warn("failed to close event source", "error", err)
	}
}

func runProduce(ctx context.Context, cfg *dto.ApplicationConfig, metrics *observability.Metrics, logger *slog.Logger) error {
	consumerConfig := kafkaConsumerConfig(cfg)
	if len(consumerConfig.Topics) == 0 {
		return errors.New("produce mode requires source.kafka.consumer.topics")
	}

	producer, err := kafka.NewProducer(
		consumerConfig.BootstrapServers,
		consumerConfig.Security,
		consumerConfig.Topics[0],
		logger,
		metrics,
	)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	defer producer.Close()

	return produce(ctx, source.NewGenerator(generatorConfig(cfg), logger), producer, logger)
}

// produce publishes generated events until the generator is exhausted or
// ctx is canceled. Failed publishes are logged and skipped.
func produce(ctx context.Context, gen *source.Generator, producer *kafka.Producer, logger *slog.Logger) error {
	var produced, failed int64
	defer func() {
		logger.Info("produce finished", "produced", produced, "failed", failed)
	}()

	for {
		ce, err := gen.NextCloudEvent(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := producer.Publish(ctx, ce); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failed++
			logger.Error("failed to produce event", "error", err, "event_id", ce.ID())
			continue
		}
		produced++
	}
}

func storageConfig(cfg *dto.ApplicationConfig) storage.Config {
	return storage.Config{
		Backend: cfg.Storage.Backend,
		File: storage.FileConfig{
			BasePath: cfg.Storage.File.BasePath,
		},
		S3: storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			SSEEnabled:   cfg.Storage.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Storage.S3.SSEKMSKeyID,
		},
		GCS: storage.GCSConfig{
			Bucket:               cfg.Storage.GCS.Bucket,
			ProjectID:            cfg.Storage.GCS.ProjectID,
			CredentialsFile:      cfg.Storage.GCS.CredentialsFile,
			CredentialsJSON:      cfg.Storage.GCS.CredentialsJSON,
			Endpoint:             cfg.Storage.GCS.Endpoint,
			UseDefaultCredential: cfg.Storage.GCS.UseDefaultCredential,
		},
		Azure: storage.AzureConfig{
			AccountName:   cfg.Storage.Azure.AccountName,
			AccountKey:    cfg.Storage.Azure.AccountKey,
			ContainerName: cfg.Storage.Azure.Container,
			Endpoint:      cfg.Storage.Azure.Endpoint,
		},
	}
}

func policyConfig(cfg *dto.ApplicationConfig) storage.PolicyConfig {
	return storage.PolicyConfig{
		MaxFileSizeMB:      cfg.FileRotation.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.FileRotation.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.FileRotation.MaxDurationSeconds,
		Strategy:           cfg.FileRotation.Strategy,
	}
}

func retryConfig(cfg *dto.ApplicationConfig) export.RetryConfig {
	r := cfg.Retry
	if !r.Enabled {
		return export.RetryConfig{MaxAttempts: 1}
	}
	return export.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		InitialBackoff:    time.Duration(r.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:        time.Duration(r.MaxBackoffMS) * time.Millisecond,
		BackoffMultiplier: r.BackoffMultiplier,
		Jitter:            r.Jitter,
	}
}
