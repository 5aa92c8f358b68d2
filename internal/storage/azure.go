package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Exporter = (*AzureExporter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// Validate checks the Azure configuration.
func (c AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("azure container name is required")
	}
	if c.AccountKey == "" && c.Endpoint == "" {
		return fmt.Errorf("azure account key or a SAS endpoint is required")
	}
	return nil
}

// connectionString builds the shared key connection string for the config.
func (c AzureConfig) connectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// blobAPI is the subset of azblob.Client used by AzureExporter.
type blobAPI interface {
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
}

// AzureExporter implements storage.Exporter for Azure Blob Storage.
// It authenticates with an account key, or with a SAS token embedded in
// Endpoint when no key is configured.
type AzureExporter struct {
	client        blobAPI
	containerName string
	logger        *slog.Logger
	metrics       MetricsCollector
}

// NewAzureExporter creates a new Azure Blob storage exporter.
func NewAzureExporter(cfg AzureConfig, logger *slog.Logger, metrics MetricsCollector) (*AzureExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		client *azblob.Client
		err    error
	)
	if cfg.AccountKey == "" {
		client, err = azblob.NewClientWithNoCredential(cfg.Endpoint, nil)
	} else {
		client, err = azblob.NewClientFromConnectionString(cfg.connectionString(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure exporter created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
	)

	return newAzureExporter(client, cfg, logger, metrics), nil
}

func newAzureExporter(client blobAPI, cfg AzureConfig, logger *slog.Logger, metrics MetricsCollector) *AzureExporter {
	return &AzureExporter{
		client:        client,
		containerName: cfg.ContainerName,
		logger:        logger,
		metrics:       metrics,
	}
}

// Export streams body to the blob named key.
func (w *AzureExporter) Export(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	startTime := time.Now()
	blobPath := objectKey(key, "wasbs://")

	counter := &countingReader{r: body}
	_, err := w.client.UploadStream(ctx, w.containerName, blobPath, counter, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		err = storageError(w.metrics, "azure", "upload", blobPath, err)
		observe(w.metrics, "azure", startTime, 0, err)
		return 0, err
	}
	observe(w.metrics, "azure", startTime, counter.n, nil)

	w.logger.Info("exported blob to Azure",
		"container", w.containerName,
		"blob", blobPath,
		"size", counter.n,
		"total_duration_ms", time.Since(startTime).Milliseconds(),
	)
	return counter.n, nil
}

// Close closes the Azure exporter.
func (w *AzureExporter) Close() error {
	w.logger.Info("Azure exporter closed")
	return nil
}
