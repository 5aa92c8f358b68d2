// Package config loads the application configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/kafeventcsv/internal/config/dto"
	"github.com/spf13/viper"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	// Set defaults
	l.setDefaults()

	// Load from file if provided
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing a ${...} reference
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafeventcsv")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Source defaults
	l.v.SetDefault("source.kind", dto.SourceGenerator)
	l.v.SetDefault("source.type_prefixes", []string{})
	l.v.SetDefault("source.generator.interval_ms", 1000)
	l.v.SetDefault("source.generator.count", 0)
	l.v.SetDefault("source.generator.return_ratio", 20)

	l.v.SetDefault("source.kafka.bootstrap_servers", []string{})
	l.v.SetDefault("source.kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("source.kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("source.kafka.sasl_username", "")
	l.v.SetDefault("source.kafka.sasl_password", "")
	l.v.SetDefault("source.kafka.aws_region", "")
	l.v.SetDefault("source.kafka.insecure_skip_verify", false)
	l.v.SetDefault("source.kafka.buffer_size", 100)
	l.v.SetDefault("source.kafka.consumer.group_id", "")
	l.v.SetDefault("source.kafka.consumer.topics", []string{})
	l.v.SetDefault("source.kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("source.kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("source.kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("source.kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("source.kafka.dlq.enabled", false)
	l.v.SetDefault("source.kafka.dlq.topic_suffix", "-dlq")

	l.v.SetDefault("source.sqs.queue_url", "")
	l.v.SetDefault("source.sqs.region", "")
	l.v.SetDefault("source.sqs.endpoint", "")
	l.v.SetDefault("source.sqs.wait_time_seconds", 20)
	l.v.SetDefault("source.sqs.max_messages", 10)
	l.v.SetDefault("source.sqs.visibility_timeout", 30)
	l.v.SetDefault("source.sqs.pollers", 1)
	l.v.SetDefault("source.sqs.buffer_size", 100)

	// Server defaults
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.stream_path", "/events.csv")

	// Stream defaults
	l.v.SetDefault("stream.header", true)
	l.v.SetDefault("stream.limit", 0)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.file.base_path", "./data")
	l.v.SetDefault("storage.s3.bucket", "")
	l.v.SetDefault("storage.s3.region", "")
	l.v.SetDefault("storage.s3.base_path", "")
	l.v.SetDefault("storage.s3.endpoint", "")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)
	l.v.SetDefault("storage.s3.sse_kms_key_id", "")
	l.v.SetDefault("storage.gcs.bucket", "")
	l.v.SetDefault("storage.gcs.project_id", "")
	l.v.SetDefault("storage.gcs.base_path", "")
	l.v.SetDefault("storage.gcs.endpoint", "")
	l.v.SetDefault("storage.gcs.credentials_file", "")
	l.v.SetDefault("storage.gcs.credentials_json", "")
	l.v.SetDefault("storage.gcs.use_default_credential", true)
	l.v.SetDefault("storage.azure.account_name", "")
	l.v.SetDefault("storage.azure.account_key", "")
	l.v.SetDefault("storage.azure.container", "")
	l.v.SetDefault("storage.azure.endpoint", "")
	l.v.SetDefault("storage.azure.base_path", "")

	// File rotation defaults, zero limits export one object per run
	l.v.SetDefault("file_rotation.max_file_size_mb", 0)
	l.v.SetDefault("file_rotation.max_records_per_file", 0)
	l.v.SetDefault("file_rotation.max_duration_seconds", 0)
	l.v.SetDefault("file_rotation.strategy", "composite")

	// Retry defaults
	l.v.SetDefault("retry.enabled", true)
	l.v.SetDefault("retry.max_attempts", 5)
	l.v.SetDefault("retry.initial_backoff_ms", 100)
	l.v.SetDefault("retry.max_backoff_ms", 30000)
	l.v.SetDefault("retry.backoff_multiplier", 2.0)
	l.v.SetDefault("retry.jitter", true)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stderr")
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 10)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	// Storage validation
	switch config.Storage.Backend {
	case "s3":
		if err := config.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("storage.s3: %w", err)
		}
	case "azure":
		if err := config.Storage.Azure.Validate(); err != nil {
			return fmt.Errorf("storage.azure: %w", err)
		}
	case "gcs":
		if config.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required for GCS backend")
		}
	case "file":
		if err := config.Storage.File.Validate(); err != nil {
			return fmt.Errorf("storage.file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}

	// File rotation validation
	switch config.FileRotation.Strategy {
	case "", "composite", "size", "time", "count":
	default:
		return fmt.Errorf("unsupported rotation strategy: %s", config.FileRotation.Strategy)
	}
	if config.FileRotation.MaxFileSizeMB < 0 || config.FileRotation.MaxRecordsPerFile < 0 || config.FileRotation.MaxDurationSeconds < 0 {
		return errors.New("file_rotation limits must not be negative")
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.Port == config.Observability.Metrics.Port {
		return fmt.Errorf("server and metrics ports must differ: %d", config.Server.Port)
	}

	return nil
}
