package dto

import (
	"fmt"
	"time"
)

// Source kinds.
const (
	SourceGenerator = "generator"
	SourceKafka     = "kafka"
	SourceSQS       = "sqs"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Source        SourceConfig        `mapstructure:"source"`
	Server        ServerConfig        `mapstructure:"server"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Storage       StorageConfig       `mapstructure:"storage"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig selects and configures the event source.
type SourceConfig struct {
	Kind string `mapstructure:"kind"`
	// TypePrefixes restricts accepted CloudEvent types. Empty accepts all.
	TypePrefixes []string        `mapstructure:"type_prefixes"`
	Generator    GeneratorConfig `mapstructure:"generator"`
	Kafka        KafkaConfig     `mapstructure:"kafka"`
	SQS          SQSConfig       `mapstructure:"sqs"`
}

// GeneratorConfig contains fake event generator settings
type GeneratorConfig struct {
	IntervalMS  int   `mapstructure:"interval_ms"`
	Count       int64 `mapstructure:"count"`
	ReturnRatio int   `mapstructure:"return_ratio"`
}

// Interval returns the generator interval as a duration.
func (c GeneratorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers   []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol   string         `mapstructure:"security_protocol"`
	SASLMechanism      string         `mapstructure:"sasl_mechanism"`
	SASLUsername       string         `mapstructure:"sasl_username"`
	SASLPassword       string         `mapstructure:"sasl_password"`
	AWSRegion          string         `mapstructure:"aws_region"`
	InsecureSkipVerify bool           `mapstructure:"insecure_skip_verify"`
	BufferSize         int            `mapstructure:"buffer_size"`
	Consumer           ConsumerConfig `mapstructure:"consumer"`
	DLQ                DLQConfig      `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// SQSConfig contains AWS SQS source configuration
type SQSConfig struct {
	QueueURL          string `mapstructure:"queue_url"`
	Region            string `mapstructure:"region"`
	Endpoint          string `mapstructure:"endpoint"`
	WaitTimeSeconds   int32  `mapstructure:"wait_time_seconds"`
	MaxMessages       int32  `mapstructure:"max_messages"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
	Pollers           int    `mapstructure:"pollers"`
	BufferSize        int    `mapstructure:"buffer_size"`
}

// ServerConfig contains the streaming HTTP server settings
type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	StreamPath string `mapstructure:"stream_path"`
}

// StreamConfig bounds the streams of the export and print modes.
type StreamConfig struct {
	Header bool  `mapstructure:"header"`
	Limit  int64 `mapstructure:"limit"`
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	S3      S3Config    `mapstructure:"s3"`
	Azure   AzureConfig `mapstructure:"azure"`
	GCS     GCSConfig   `mapstructure:"gcs"`
	File    FileConfig  `mapstructure:"file"`
}

// BasePath returns the key prefix of the configured backend.
func (c StorageConfig) BasePath() string {
	switch c.Backend {
	case "s3":
		return c.S3.BasePath
	case "gcs":
		return c.GCS.BasePath
	case "azure":
		return c.Azure.BasePath
	default:
		// The file exporter roots keys at its own base path.
		return ""
	}
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
	BasePath    string `mapstructure:"base_path"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// FileRotationConfig contains export rotation settings. All limits zero
// exports a run as a single object.
type FileRotationConfig struct {
	MaxFileSizeMB      int64  `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int    `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	Strategy           string `mapstructure:"strategy"`
}

// RetryConfig contains retry settings for exporting rotated objects
type RetryConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	Jitter            bool    `mapstructure:"jitter"`
}

// Validate validates the retry settings. Disabled retries are not checked.
func (c *RetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1: %d", c.MaxAttempts)
	}
	if c.InitialBackoffMS < 0 || c.MaxBackoffMS < 0 {
		return fmt.Errorf("retry backoff must not be negative")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("retry backoff_multiplier must be at least 1: %v", c.BackoffMultiplier)
	}
	return nil
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// GracePeriod returns the shutdown grace period as a duration.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage backend is required")
	}
	if c.Stream.Limit < 0 {
		return fmt.Errorf("stream limit must not be negative: %d", c.Stream.Limit)
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate validates the source selection.
func (c *SourceConfig) Validate() error {
	switch c.Kind {
	case SourceGenerator:
		if c.Generator.Count < 0 {
			return fmt.Errorf("generator count must not be negative")
		}
		if c.Generator.ReturnRatio < 0 || c.Generator.ReturnRatio > 100 {
			return fmt.Errorf("generator return ratio must be between 0 and 100")
		}
	case SourceKafka:
		if len(c.Kafka.BootstrapServers) == 0 {
			return fmt.Errorf("kafka bootstrap servers are required")
		}
		if c.Kafka.Consumer.GroupID == "" {
			return fmt.Errorf("kafka consumer group ID is required")
		}
		if len(c.Kafka.Consumer.Topics) == 0 {
			return fmt.Errorf("kafka consumer topics are required")
		}
	case SourceSQS:
		if c.SQS.QueueURL == "" {
			return fmt.Errorf("sqs queue url is required")
		}
	default:
		return fmt.Errorf("unsupported source kind: %q", c.Kind)
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
