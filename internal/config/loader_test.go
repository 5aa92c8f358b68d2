package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jittakal/kafeventcsv/internal/config/dto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "application.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}
	return configFile
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("expected non-nil loader")
	}
	if loader.v == nil {
		t.Fatal("expected non-nil viper instance")
	}
}

func TestLoader_LoadWithValidConfig(t *testing.T) {
	configFile := writeConfig(t, `
application:
  name: test-app
  version: 2.0.0

source:
  kind: kafka
  kafka:
    bootstrap_servers:
      - localhost:9092
    consumer:
      group_id: test-group
      topics:
        - test-topic

storage:
  backend: file
  file:
    base_path: /tmp/test

file_rotation:
  max_records_per_file: 500
  strategy: count
`)

	config, err := NewLoader().Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Application.Name != "test-app" {
		t.Errorf("Application.Name = %s, want test-app", config.Application.Name)
	}
	if config.Source.Kind != dto.SourceKafka {
		t.Errorf("Source.Kind = %s, want kafka", config.Source.Kind)
	}
	if config.Source.Kafka.Consumer.GroupID != "test-group" {
		t.Errorf("GroupID = %s, want test-group", config.Source.Kafka.Consumer.GroupID)
	}
	if got := config.Source.Kafka.Consumer.Topics; len(got) != 1 || got[0] != "test-topic" {
		t.Errorf("Topics = %v, want [test-topic]", got)
	}
	if config.FileRotation.MaxRecordsPerFile != 500 || config.FileRotation.Strategy != "count" {
		t.Errorf("FileRotation = %+v", config.FileRotation)
	}

	// Values absent from the file come from defaults.
	if config.Source.Kafka.Consumer.AutoOffsetReset != "earliest" {
		t.Errorf("AutoOffsetReset = %s, want earliest", config.Source.Kafka.Consumer.AutoOffsetReset)
	}
	if !config.Stream.Header {
		t.Error("Stream.Header should default to true")
	}
}

func TestLoader_LoadWithMissingFile(t *testing.T) {
	config, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want defaults", err)
	}
	if config.Source.Kind != dto.SourceGenerator {
		t.Errorf("Source.Kind = %s, want generator", config.Source.Kind)
	}
	if config.Server.Port != 8080 || config.Observability.Metrics.Port != 9090 {
		t.Errorf("ports = %d/%d, want 8080/9090", config.Server.Port, config.Observability.Metrics.Port)
	}
	if config.Server.StreamPath != "/events.csv" {
		t.Errorf("StreamPath = %s, want /events.csv", config.Server.StreamPath)
	}
	if !config.Retry.Enabled || config.Retry.MaxAttempts != 5 || config.Retry.BackoffMultiplier != 2.0 {
		t.Errorf("Retry = %+v, want enabled with 5 attempts", config.Retry)
	}
}

func TestLoader_LoadMalformedFile(t *testing.T) {
	configFile := writeConfig(t, "source: [unterminated")
	if _, err := NewLoader().Load(configFile); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestLoader_EnvironmentOverride(t *testing.T) {
	t.Setenv("APP_SOURCE_KIND", "sqs")
	t.Setenv("APP_SOURCE_SQS_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/123/events")
	t.Setenv("APP_STREAM_LIMIT", "25")

	config, err := NewLoader().Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Source.Kind != dto.SourceSQS {
		t.Errorf("Source.Kind = %s, want sqs", config.Source.Kind)
	}
	if !strings.HasSuffix(config.Source.SQS.QueueURL, "/123/events") {
		t.Errorf("QueueURL = %s", config.Source.SQS.QueueURL)
	}
	if config.Stream.Limit != 25 {
		t.Errorf("Stream.Limit = %d, want 25", config.Stream.Limit)
	}
}

func TestLoader_ExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("TEST_EXPORT_BUCKET", "expanded-bucket")
	configFile := writeConfig(t, `
storage:
  backend: s3
  s3:
    bucket: ${TEST_EXPORT_BUCKET}
    region: us-east-1
`)

	config, err := NewLoader().Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Storage.S3.Bucket != "expanded-bucket" {
		t.Errorf("S3.Bucket = %s, want expanded-bucket", config.Storage.S3.Bucket)
	}
}

func TestLoader_LoadRejectsInvalidConfig(t *testing.T) {
	configFile := writeConfig(t, `
source:
  kind: kafka
`)
	_, err := NewLoader().Load(configFile)
	if err == nil {
		t.Fatal("Load() should fail without kafka settings")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("error = %v", err)
	}
}

func validConfig() *dto.ApplicationConfig {
	return &dto.ApplicationConfig{
		Application: dto.ApplicationInfo{Name: "kafeventcsv"},
		Source:      dto.SourceConfig{Kind: dto.SourceGenerator},
		Server:      dto.ServerConfig{Port: 8080},
		Storage: dto.StorageConfig{
			Backend: "file",
			File:    dto.FileConfig{BasePath: "/tmp/test"},
		},
		FileRotation: dto.FileRotationConfig{Strategy: "composite"},
		Observability: dto.ObservabilityConfig{
			Metrics: dto.MetricsConfig{Port: 9090},
		},
	}
}

func TestLoader_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *dto.ApplicationConfig)
		wantErr bool
	}{
		{
			name:    "valid file backend config",
			modify:  func(c *dto.ApplicationConfig) {},
			wantErr: false,
		},
		{
			name:    "missing source kind",
			modify:  func(c *dto.ApplicationConfig) { c.Source.Kind = "" },
			wantErr: true,
		},
		{
			name: "s3 backend missing bucket",
			modify: func(c *dto.ApplicationConfig) {
				c.Storage.Backend = "s3"
				c.Storage.S3 = dto.S3Config{Region: "us-east-1"}
			},
			wantErr: true,
		},
		{
			name: "azure backend missing account name",
			modify: func(c *dto.ApplicationConfig) {
				c.Storage.Backend = "azure"
				c.Storage.Azure = dto.AzureConfig{Container: "test-container"}
			},
			wantErr: true,
		},
		{
			name:    "gcs backend missing bucket",
			modify:  func(c *dto.ApplicationConfig) { c.Storage.Backend = "gcs" },
			wantErr: true,
		},
		{
			name:    "file backend missing base path",
			modify:  func(c *dto.ApplicationConfig) { c.Storage.File.BasePath = "" },
			wantErr: true,
		},
		{
			name:    "unsupported storage backend",
			modify:  func(c *dto.ApplicationConfig) { c.Storage.Backend = "unsupported" },
			wantErr: true,
		},
		{
			name:    "unsupported rotation strategy",
			modify:  func(c *dto.ApplicationConfig) { c.FileRotation.Strategy = "any" },
			wantErr: true,
		},
		{
			name:    "negative rotation limit",
			modify:  func(c *dto.ApplicationConfig) { c.FileRotation.MaxRecordsPerFile = -1 },
			wantErr: true,
		},
		{
			name:    "invalid metrics port",
			modify:  func(c *dto.ApplicationConfig) { c.Observability.Metrics.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid server port",
			modify:  func(c *dto.ApplicationConfig) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "server and metrics on the same port",
			modify:  func(c *dto.ApplicationConfig) { c.Server.Port = 9090 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(config)
			err := NewLoader().Validate(config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_setDefaults(t *testing.T) {
	loader := NewLoader()
	loader.setDefaults()

	if loader.v.GetString("application.name") != "kafeventcsv" {
		t.Error("default application.name not set correctly")
	}
	if loader.v.GetString("storage.backend") != "file" {
		t.Error("default storage.backend not set correctly")
	}
	if loader.v.GetString("source.kind") != "generator" {
		t.Error("default source.kind not set correctly")
	}
	if !loader.v.GetBool("stream.header") {
		t.Error("default stream.header not set correctly")
	}
}
