package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Exporter = (*FileExporter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// Validate checks the filesystem configuration.
func (c FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}

// FileExporter implements storage.Exporter for local filesystem storage.
// Objects are written to a temporary file in the target directory and
// renamed into place, so readers never see a partial file.
type FileExporter struct {
	basePath string
	logger   *slog.Logger
	metrics  MetricsCollector
	mu       sync.RWMutex
	closed   bool
}

// NewFileExporter creates a new filesystem exporter.
func NewFileExporter(config FileConfig, logger *slog.Logger, metrics MetricsCollector) (*FileExporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	// Ensure base path exists
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("filesystem exporter created", "base_path", config.BasePath)

	return &FileExporter{
		basePath: config.BasePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Export writes body to basePath/key.
func (w *FileExporter) Export(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return 0, apperrors.ErrExporterClosed
	}

	startTime := time.Now()
	size, err := w.export(ctx, key, body)
	observe(w.metrics, "file", startTime, size, err)
	if err != nil {
		return 0, err
	}

	w.logger.Info("exported file",
		"path", filepath.Join(w.basePath, key),
		"size", size,
		"total_duration_ms", time.Since(startTime).Milliseconds(),
	)
	return size, nil
}

func (w *FileExporter) export(ctx context.Context, key string, body io.Reader) (int64, error) {
	// Strip file:// protocol prefix if present
	cleanKey := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "file://")))
	if cleanKey == "." || !filepath.IsLocal(cleanKey) {
		return 0, storageError(w.metrics, "file", "validate", key, fmt.Errorf("key escapes base path"))
	}

	fullPath := filepath.Join(w.basePath, cleanKey)
	dir := filepath.Dir(fullPath)

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, storageError(w.metrics, "file", "mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return 0, storageError(w.metrics, "file", "create", dir, err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, storageError(w.metrics, "file", "write", fullPath, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return 0, storageError(w.metrics, "file", "rename", fullPath, err)
	}
	return size, nil
}

// Close closes the exporter. Later exports fail with ErrExporterClosed.
func (w *FileExporter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.logger.Info("closing filesystem exporter")
	return nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
