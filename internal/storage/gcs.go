package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Exporter = (*GCSExporter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate checks the GCS configuration.
func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	if c.CredentialsFile != "" && c.CredentialsJSON != "" {
		return fmt.Errorf("gcs credentials file and credentials json are mutually exclusive")
	}
	return nil
}

// objectWriterFunc opens a writer for one object. Closing it commits the
// object.
type objectWriterFunc func(ctx context.Context, object, contentType string) io.WriteCloser

// GCSExporter implements storage.Exporter for Google Cloud Storage.
// It supports multiple authentication methods (service account file, JSON, default credentials).
type GCSExporter struct {
	client    *gcs.Client
	bucket    string
	newWriter objectWriterFunc
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewGCSExporter creates a new Google Cloud Storage exporter.
func NewGCSExporter(ctx context.Context, cfg GCSConfig, logger *slog.Logger, metrics MetricsCollector) (*GCSExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := gcs.NewClient(ctx, gcsClientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS exporter created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
	)

	bucket := client.Bucket(cfg.Bucket)
	w := newGCSExporter(func(ctx context.Context, object, contentType string) io.WriteCloser {
		ow := bucket.Object(object).NewWriter(ctx)
		ow.ContentType = contentType
		return ow
	}, cfg, logger, metrics)
	w.client = client
	return w, nil
}

func newGCSExporter(newWriter objectWriterFunc, cfg GCSConfig, logger *slog.Logger, metrics MetricsCollector) *GCSExporter {
	return &GCSExporter{
		bucket:    cfg.Bucket,
		newWriter: newWriter,
		logger:    logger,
		metrics:   metrics,
	}
}

func gcsClientOptions(cfg GCSConfig, logger *slog.Logger) []option.ClientOption {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		// GOOGLE_APPLICATION_CREDENTIALS or the default service account.
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}
	return clientOpts
}

// Export streams body to gs://bucket/key.
func (w *GCSExporter) Export(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	startTime := time.Now()
	objectPath := objectKey(key, "gs://")

	// Canceling ctx aborts the upload and discards the partial object.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gcsWriter := w.newWriter(ctx, objectPath, contentType)

	bytesWritten, err := io.Copy(gcsWriter, body)
	if err != nil {
		cancel()
		_ = gcsWriter.Close()
		err = storageError(w.metrics, "gcs", "upload", objectPath, err)
		observe(w.metrics, "gcs", startTime, 0, err)
		return 0, err
	}

	// Close the writer to finalize the upload
	if err := gcsWriter.Close(); err != nil {
		err = storageError(w.metrics, "gcs", "close", objectPath, err)
		observe(w.metrics, "gcs", startTime, 0, err)
		return 0, err
	}
	observe(w.metrics, "gcs", startTime, bytesWritten, nil)

	w.logger.Info("exported object to GCS",
		"bucket", w.bucket,
		"object", objectPath,
		"size", bytesWritten,
		"total_duration_ms", time.Since(startTime).Milliseconds(),
	)
	return bytesWritten, nil
}

// Close closes the GCS exporter.
func (w *GCSExporter) Close() error {
	w.logger.Info("closing GCS exporter")
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
