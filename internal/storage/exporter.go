package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncExportsWritten(backend, status string)
	ObserveExportDuration(backend string, duration float64)
	ObserveExportSize(backend string, size float64)
	IncStorageErrors(backend string, operation string)
}

// Config selects and configures one exporter backend.
type Config struct {
	Backend string
	File    FileConfig
	S3      S3Config
	GCS     GCSConfig
	Azure   AzureConfig
}

// Validate checks the configuration of the selected backend.
func (c Config) Validate() error {
	switch c.Backend {
	case "file":
		return c.File.Validate()
	case "s3":
		return c.S3.Validate()
	case "gcs":
		return c.GCS.Validate()
	case "azure":
		return c.Azure.Validate()
	default:
		return fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", c.Backend)
	}
}

// Bucket returns the bucket or container of the selected backend.
func (c Config) Bucket() string {
	switch c.Backend {
	case "s3":
		return c.S3.Bucket
	case "gcs":
		return c.GCS.Bucket
	case "azure":
		return c.Azure.ContainerName
	default:
		return ""
	}
}

// New creates the exporter for the configured backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (storage.Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "file":
		return NewFileExporter(cfg.File, logger, metrics)
	case "s3":
		return NewS3Exporter(ctx, cfg.S3, logger, metrics)
	case "gcs":
		return NewGCSExporter(ctx, cfg.GCS, logger, metrics)
	default:
		return NewAzureExporter(cfg.Azure, logger, metrics)
	}
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// observe records the outcome of one export.
func observe(metrics MetricsCollector, backend string, start time.Time, size int64, err error) {
	if metrics == nil {
		return
	}
	if err != nil {
		metrics.IncExportsWritten(backend, "error")
		return
	}
	metrics.IncExportsWritten(backend, "success")
	metrics.ObserveExportDuration(backend, time.Since(start).Seconds())
	metrics.ObserveExportSize(backend, float64(size))
}

func storageError(metrics MetricsCollector, backend, operation, path string, err error) error {
	if metrics != nil {
		metrics.IncStorageErrors(backend, operation)
	}
	return &apperrors.StorageError{Operation: operation, Path: path, Err: err}
}
