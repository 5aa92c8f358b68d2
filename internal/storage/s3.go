package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Exporter = (*S3Exporter)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate checks the S3 configuration.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	if c.SSEKMSKeyID != "" && !c.SSEEnabled {
		return fmt.Errorf("s3 kms key id requires sse to be enabled")
	}
	return nil
}

// uploadAPI is the subset of manager.Uploader used by S3Exporter.
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Exporter implements storage.Exporter for AWS S3 storage.
// Bodies are streamed through the multipart uploader, so an export never
// needs to be held in memory or on disk as a whole.
type S3Exporter struct {
	uploader    uploadAPI
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
	metrics     MetricsCollector
}

// NewS3Exporter creates a new S3 exporter.
func NewS3Exporter(ctx context.Context, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) (*S3Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Load AWS config
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	// Create uploader with multipart upload support
	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5             // 5 concurrent uploads
	})

	logger.Info("S3 exporter created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	return newS3Exporter(uploader, cfg, logger, metrics), nil
}

func newS3Exporter(uploader uploadAPI, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) *S3Exporter {
	return &S3Exporter{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
		metrics:     metrics,
	}
}

// Export uploads body to s3://bucket/key.
func (w *S3Exporter) Export(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	startTime := time.Now()
	s3Key := objectKey(key, "s3://")

	counter := &countingReader{r: body}
	uploadInput := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(s3Key),
		Body:        counter,
		ContentType: aws.String(contentType),
	}

	// Add SSE if enabled
	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			uploadInput.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			uploadInput.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := w.uploader.Upload(ctx, uploadInput)
	if err != nil {
		err = storageError(w.metrics, "s3", "upload", s3Key, err)
		observe(w.metrics, "s3", startTime, 0, err)
		return 0, err
	}
	observe(w.metrics, "s3", startTime, counter.n, nil)

	w.logger.Info("exported object to S3",
		"bucket", w.bucket,
		"key", s3Key,
		"size", counter.n,
		"location", result.Location,
		"total_duration_ms", time.Since(startTime).Milliseconds(),
	)
	return counter.n, nil
}

// Close closes the S3 exporter.
func (w *S3Exporter) Close() error {
	w.logger.Info("closing S3 exporter")
	return nil
}

// objectKey strips scheme://bucket/ from a URI and any leading slash.
func objectKey(key, scheme string) string {
	if strings.HasPrefix(key, scheme) {
		parts := strings.SplitN(strings.TrimPrefix(key, scheme), "/", 2)
		if len(parts) == 2 {
			key = parts[1]
		} else {
			key = ""
		}
	}
	return strings.TrimPrefix(key, "/")
}
