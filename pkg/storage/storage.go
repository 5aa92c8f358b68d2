// Package storage defines interfaces for exporting encoded event streams.
//
// This package provides abstractions for writing CSV objects to various
// storage backends (local filesystem, S3, Google Cloud Storage, Azure Blob).
package storage

import (
	"context"
	"io"
	"time"
)

// ContentTypeCSV is the content type of exported objects.
const ContentTypeCSV = "text/csv; charset=utf-8"

// Exporter writes one object per call.
type Exporter interface {
	// Export reads body until io.EOF and stores it under key.
	// Returns the number of bytes stored.
	Export(ctx context.Context, key string, body io.Reader, contentType string) (int64, error)

	// Close closes the exporter and releases resources.
	Close() error
}

// Router determines object keys for exported files.
type Router interface {
	// Key returns the object key for a file started at t.
	Key(t time.Time) string
}

// FileStats describes the rows buffered for one object.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// RotationPolicy determines when to rotate (flush) buffered rows to storage.
type RotationPolicy interface {
	// ShouldRotate returns true if the buffer should be flushed based on stats.
	ShouldRotate(stats FileStats) bool
}
