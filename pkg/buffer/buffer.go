// Package buffer defines interfaces for row buffering operations.
//
// Buffers collect encoded rows of one export object so that rotation can
// split a stream into several self-contained CSV objects.
package buffer

import (
	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Buffer collects encoded rows before they are exported.
// All implementations must be thread-safe.
type Buffer interface {
	// Add appends one encoded row.
	// Returns an error wrapping ErrBufferFull if a limit would be exceeded.
	Add(row []byte) error

	// Drain returns the buffered object and resets the buffer.
	// Returns nil if no rows were added.
	Drain() []byte

	// Stats returns current buffer statistics without modifying the buffer.
	Stats() storage.FileStats

	// IsEmpty returns true if the buffer contains no rows.
	IsEmpty() bool

	// Reset clears the buffer and resets all statistics.
	Reset()
}

// Factory creates a buffer whose drained objects start with header.
type Factory func(header []byte, maxSizeBytes int64, maxRecords int) Buffer
