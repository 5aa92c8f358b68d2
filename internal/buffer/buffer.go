// Package buffer implements row buffering for segmented exports.
package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jittakal/kafeventcsv/internal/errors"
	pkgbuffer "github.com/jittakal/kafeventcsv/pkg/buffer"
	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgbuffer.Buffer = (*Segment)(nil)

// Segment buffers the encoded rows of one export object.
// It provides thread-safe buffering with size limits and record count limits.
// The buffer tracks first and last write times for file rotation decisions.
type Segment struct {
	header         []byte
	data           []byte
	maxSizeBytes   int64
	maxRecords     int
	records        int
	firstWriteTime time.Time
	lastWriteTime  time.Time
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a segment that starts every drained object with header.
// Zero limits mean unlimited. The header does not count against the limits.
func New(header []byte, maxSizeBytes int64, maxRecords int) *Segment {
	return &Segment{
		header:       append([]byte(nil), header...),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
		now:          time.Now,
	}
}

// NewBuffer is New as a pkgbuffer.Factory.
func NewBuffer(header []byte, maxSizeBytes int64, maxRecords int) pkgbuffer.Buffer {
	return New(header, maxSizeBytes, maxRecords)
}

// Add appends an encoded row to the segment. A row is never split, so the
// first row of an empty segment is accepted even when it exceeds the size
// limit.
func (b *Segment) Add(row []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxRecords > 0 && b.records >= b.maxRecords {
		return fmt.Errorf("%w: max records (%d) reached", errors.ErrBufferFull, b.maxRecords)
	}

	if b.maxSizeBytes > 0 && b.records > 0 && int64(len(b.data)+len(row)) > b.maxSizeBytes {
		return fmt.Errorf("%w: max size (%d bytes) would be exceeded", errors.ErrBufferFull, b.maxSizeBytes)
	}

	b.data = append(b.data, row...)
	b.records++

	now := b.now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now

	return nil
}

// Drain returns the buffered object, header first, and resets the segment.
// It returns nil when no rows were added. The returned slice is owned by the
// caller.
func (b *Segment) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.records == 0 {
		return nil
	}
	out := make([]byte, 0, len(b.header)+len(b.data))
	out = append(out, b.header...)
	out = append(out, b.data...)
	b.reset()
	return out
}

// Stats returns current buffer statistics.
func (b *Segment) Stats() storage.FileStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return storage.FileStats{
		RecordCount:    b.records,
		SizeBytes:      int64(len(b.data)),
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// IsEmpty returns true if the buffer is empty.
func (b *Segment) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.records == 0
}

// Reset clears the buffer and resets all statistics.
func (b *Segment) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *Segment) reset() {
	b.data = nil
	b.records = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}
