// Package export drains an event stream into CSV objects in storage.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jittakal/kafeventcsv/internal/buffer"
	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/internal/storage"
	pkgbuffer "github.com/jittakal/kafeventcsv/pkg/buffer"
	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
	pkgstorage "github.com/jittakal/kafeventcsv/pkg/storage"
)

// MetricsCollector defines metrics operations for export runs.
type MetricsCollector interface {
	AddRows(consumer string, rows, bytes int64)
	StreamStarted(consumer string)
	StreamFinished(consumer, status string, duration float64)
	IncStreamErrors(consumer, kind string)
}

const metricsLabel = "export"

// Config configures a Runner.
type Config struct {
	// Header starts every object with the column header row.
	Header bool
	// Rotation splits the stream into several objects. Without limits the
	// whole stream is uploaded as one object.
	Rotation storage.PolicyConfig
	// Retry applies to rotated objects only; a streamed single object cannot
	// be replayed.
	Retry RetryConfig
}

// Result summarizes one run.
type Result struct {
	Keys  []string
	Rows  int64
	Bytes int64
}

// Runner exports event streams. A Runner may be reused for several runs,
// but not concurrently.
type Runner struct {
	exporter  pkgstorage.Exporter
	router    pkgstorage.Router
	policy    *storage.CompositePolicy
	newBuffer pkgbuffer.Factory
	retry     RetryConfig
	single    bool
	header    bool
	logger    *slog.Logger
	metrics   MetricsCollector
	now       func() time.Time
}

// New creates a Runner writing through exporter with keys from router.
// metrics may be nil.
func New(exporter pkgstorage.Exporter, router pkgstorage.Router, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Runner, error) {
	if exporter == nil || router == nil {
		return nil, fmt.Errorf("exporter and router are required")
	}
	if err := cfg.Rotation.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		exporter:  exporter,
		router:    router,
		policy:    storage.NewPolicy(cfg.Rotation),
		newBuffer: buffer.NewBuffer,
		retry:     cfg.Retry,
		single:    cfg.Rotation.Unbounded(),
		header:    cfg.Header,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// Run encodes src and exports it until src is exhausted or fails.
//
// In single-object mode the stream is piped to the exporter as it is
// encoded, and a source failure aborts the upload. In rotating mode rows are
// buffered per object; rows buffered when the source fails are still
// exported before the error is returned.
func (r *Runner) Run(ctx context.Context, src rowstream.Source[event.Event]) (Result, error) {
	stream, err := event.NewStream(src, r.header)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	if r.metrics != nil {
		r.metrics.StreamStarted(metricsLabel)
	}

	var res Result
	if r.single {
		res, err = r.runSingle(ctx, stream)
	} else {
		res, err = r.runRotating(ctx, stream)
	}

	stats := stream.Stats()
	res.Rows = stats.Rows
	status := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = "canceled"
	default:
		status = "error"
		if r.metrics != nil {
			r.metrics.IncStreamErrors(metricsLabel, errorKind(err))
		}
	}
	if r.metrics != nil {
		r.metrics.AddRows(metricsLabel, stats.Rows, stats.Bytes)
		r.metrics.StreamFinished(metricsLabel, status, time.Since(start).Seconds())
	}

	r.logger.Info("export finished",
		"status", status,
		"objects", len(res.Keys),
		"rows", res.Rows,
		"bytes", res.Bytes,
		"duration", time.Since(start),
	)
	return res, err
}

func (r *Runner) runSingle(ctx context.Context, stream *rowstream.Stream[event.Event]) (Result, error) {
	key := r.router.Key(r.now())
	n, err := r.exporter.Export(ctx, key, rowstream.NewReader(ctx, stream), pkgstorage.ContentTypeCSV)
	if err != nil {
		return Result{}, fmt.Errorf("export %s: %w", key, err)
	}
	return Result{Keys: []string{key}, Bytes: n}, nil
}

func (r *Runner) runRotating(ctx context.Context, stream *rowstream.Stream[event.Event]) (Result, error) {
	var res Result

	var header []byte
	if r.header {
		chunk, err := stream.Next(ctx)
		if err != nil {
			return res, err
		}
		header = chunk
	}
	seg := r.newBuffer(header, r.policy.MaxSizeBytes(), r.policy.MaxRecords())

	flush := func() error {
		body := seg.Drain()
		if body == nil {
			return nil
		}
		key := r.router.Key(r.now())
		var n int64
		attempts := 0
		err := r.retry.do(ctx, func() error {
			attempts++
			if attempts > 1 {
				r.logger.Warn("retrying export", "key", key, "attempt", attempts)
			}
			// A canceled run still stores what it has already pulled.
			var err error
			n, err = r.exporter.Export(context.WithoutCancel(ctx), key, bytes.NewReader(body), pkgstorage.ContentTypeCSV)
			return err
		})
		if err != nil {
			return fmt.Errorf("export %s: %w", key, err)
		}
		res.Keys = append(res.Keys, key)
		res.Bytes += n
		return nil
	}

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return res, flush()
		}
		if err != nil {
			return res, errors.Join(err, flush())
		}

		if err := seg.Add(chunk); errors.Is(err, apperrors.ErrBufferFull) {
			if err := flush(); err != nil {
				return res, err
			}
			if err := seg.Add(chunk); err != nil {
				return res, err
			}
		} else if err != nil {
			return res, err
		}

		if r.policy.ShouldRotate(seg.Stats()) {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
}

func errorKind(err error) string {
	var encErr *rowstream.EncodeError
	var storageErr *apperrors.StorageError
	switch {
	case errors.As(err, &encErr):
		return "encode"
	case errors.As(err, &storageErr):
		return "storage"
	default:
		return "source"
	}
}
