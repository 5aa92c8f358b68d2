// Package storage implements exporters that store encoded CSV objects.
package storage

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/kafeventcsv/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// DefaultRouter implements Hive-style date partitioning for object keys.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string

	mu            sync.Mutex
	lastTimestamp string
	sequence      int
}

// NewRouter creates a new storage router. protocol and bucket only affect
// Location.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Key returns the object key for a file started at t.
// Format: basePath/dt=YYYY-MM-DD/events_YYYYMMDD_HHMMSS_NNN.csv
// NNN counts files started within the same second, so keys stay unique for
// up to 999 files per second.
func (r *DefaultRouter) Key(t time.Time) string {
	t = t.UTC()
	timestamp := t.Format("20060102_150405")

	r.mu.Lock()
	if timestamp == r.lastTimestamp {
		r.sequence++
	} else {
		r.sequence = 1
		r.lastTimestamp = timestamp
	}
	seq := r.sequence
	r.mu.Unlock()

	filename := fmt.Sprintf("events_%s_%03d.csv", timestamp, seq)
	return path.Join(r.basePath, "dt="+t.Format("2006-01-02"), filename)
}

// Location returns the URI of key, e.g. s3://bucket/key.
func (r *DefaultRouter) Location(key string) string {
	if r.protocol == "" || r.protocol == "file" {
		return key
	}
	return fmt.Sprintf("%s://%s/%s", r.protocol, r.bucket, key)
}

// Protocol returns the URI scheme of a storage backend.
func Protocol(backend string) string {
	switch backend {
	case "s3":
		return "s3"
	case "azure":
		return "wasbs"
	case "gcs":
		return "gs"
	default:
		return "file"
	}
}

// NewPolicy creates a new rotation policy (alias for NewCompositePolicy).
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return NewCompositePolicy(config)
}

// RotationStrategy determines when to rotate files.
type RotationStrategy string

const (
	StrategyComposite RotationStrategy = "composite"
	StrategySizeOnly  RotationStrategy = "size"
	StrategyTimeOnly  RotationStrategy = "time"
	StrategyCount     RotationStrategy = "count"
)

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
	Strategy           string
}

// Validate checks the rotation configuration.
func (c PolicyConfig) Validate() error {
	switch RotationStrategy(c.Strategy) {
	case "", StrategyComposite, StrategySizeOnly, StrategyTimeOnly, StrategyCount:
	default:
		return fmt.Errorf("unsupported rotation strategy: %s", c.Strategy)
	}
	if c.MaxFileSizeMB < 0 || c.MaxRecordsPerFile < 0 || c.MaxDurationSeconds < 0 {
		return fmt.Errorf("rotation limits must not be negative")
	}
	return nil
}

// Unbounded reports whether no limit is configured for the strategy, in
// which case an export is a single object.
func (c PolicyConfig) Unbounded() bool {
	p := NewCompositePolicy(c)
	return p.maxSizeBytes == 0 && p.maxRecords == 0 && p.maxDuration == 0
}

// CompositePolicy rotates based on multiple criteria. The strategy selects
// which of the configured limits apply.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
	now          func() time.Time
}

// NewCompositePolicy creates a new composite rotation policy.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	p := &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
		now:          time.Now,
	}

	switch RotationStrategy(config.Strategy) {
	case StrategySizeOnly:
		p.maxRecords, p.maxDuration = 0, 0
	case StrategyTimeOnly:
		p.maxSizeBytes, p.maxRecords = 0, 0
	case StrategyCount:
		p.maxSizeBytes, p.maxDuration = 0, 0
	}
	return p
}

// MaxSizeBytes returns the size limit in bytes, or 0.
func (p *CompositePolicy) MaxSizeBytes() int64 { return p.maxSizeBytes }

// MaxRecords returns the record limit, or 0.
func (p *CompositePolicy) MaxRecords() int { return p.maxRecords }

// ShouldRotate returns true if any rotation condition is met.
func (p *CompositePolicy) ShouldRotate(stats storage.FileStats) bool {
	// Size-based rotation
	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}

	// Count-based rotation
	if p.maxRecords > 0 && stats.RecordCount >= p.maxRecords {
		return true
	}

	// Time-based rotation
	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		age := p.now().Sub(stats.FirstWriteTime)
		if age >= p.maxDuration {
			return true
		}
	}

	return false
}
