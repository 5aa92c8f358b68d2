package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/internal/source"
	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// EventSource is an event source owned by a single request.
type EventSource interface {
	rowstream.Source[event.Event]
	Close() error
}

// Opener opens a fresh event source for every streaming request.
type Opener interface {
	Open(ctx context.Context) (EventSource, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (EventSource, error)

func (f OpenerFunc) Open(ctx context.Context) (EventSource, error) { return f(ctx) }

// NopCloser returns an EventSource with a no-op Close wrapping src.
func NopCloser(src rowstream.Source[event.Event]) EventSource {
	return nopCloser{src}
}

type nopCloser struct {
	rowstream.Source[event.Event]
}

func (nopCloser) Close() error { return nil }

// MetricsCollector defines metrics operations for streaming responses.
type MetricsCollector interface {
	AddRows(consumer string, rows, bytes int64)
	StreamStarted(consumer string)
	StreamFinished(consumer, status string, duration float64)
	IncStreamErrors(consumer, kind string)
}

// ErrorResponse is the JSON body of a request rejected before streaming.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	csvContentType = "text/csv; charset=utf-8"
	metricsLabel   = "http"
)

// StreamHandler returns a handler that streams events as CSV, one flushed
// write per row.
//
// Query parameters: limit caps the number of records, header=false omits
// the header row. Failures before the first byte is written are reported
// as JSON; later failures abort the response.
func StreamHandler(opener Opener, metrics MetricsCollector, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, header, err := parseStreamQuery(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()}, logger)
			return
		}

		ctx := r.Context()
		src, err := opener.Open(ctx)
		if err != nil {
			logger.Error("failed to open event source", "error", err)
			if metrics != nil {
				metrics.IncStreamErrors(metricsLabel, "open")
			}
			writeJSON(w, failureStatus(err), ErrorResponse{Error: "event source unavailable"}, logger)
			return
		}
		defer func() {
			if err := src.Close(); err != nil {
				logger.Warn("failed to close event source", "error", err)
			}
		}()

		stream, err := event.NewStream(source.Limit[event.Event](src, limit), header)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()}, logger)
			return
		}

		start := time.Now()
		if metrics != nil {
			metrics.StreamStarted(metricsLabel)
		}
		status := "ok"
		defer func() {
			stats := stream.Stats()
			if metrics != nil {
				metrics.AddRows(metricsLabel, stats.Rows, stats.Bytes)
				metrics.StreamFinished(metricsLabel, status, time.Since(start).Seconds())
			}
			logger.Info("csv stream finished",
				"status", status,
				"rows", stats.Rows,
				"bytes", stats.Bytes,
				"duration", time.Since(start),
			)
		}()

		rc := http.NewResponseController(w)
		wrote := false
		for {
			chunk, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				if !wrote {
					w.Header().Set("Content-Type", csvContentType)
					w.WriteHeader(http.StatusOK)
				}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					status = "canceled"
					return
				}
				status = "error"
				logger.Error("csv stream failed", "error", err, "rows", stream.Stats().Rows)
				if metrics != nil {
					metrics.IncStreamErrors(metricsLabel, errorKind(err))
				}
				if !wrote {
					writeJSON(w, failureStatus(err), ErrorResponse{Error: "event stream failed"}, logger)
					return
				}
				panic(http.ErrAbortHandler)
			}

			if !wrote {
				w.Header().Set("Content-Type", csvContentType)
				w.Header().Set("X-Content-Type-Options", "nosniff")
				w.WriteHeader(http.StatusOK)
				wrote = true
			}
			if _, err := w.Write(chunk); err != nil {
				status = "canceled"
				logger.Debug("client write failed", "error", err)
				return
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				status = "canceled"
				return
			}
		}
	}
}

func parseStreamQuery(r *http.Request) (limit int64, header bool, err error) {
	q := r.URL.Query()
	header = true
	if v := q.Get("header"); v != "" {
		header, err = strconv.ParseBool(v)
		if err != nil {
			return 0, false, errors.New("header must be a boolean")
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.ParseInt(v, 10, 64)
		if err != nil || limit < 0 {
			return 0, false, errors.New("limit must be a non-negative integer")
		}
	}
	return limit, header, nil
}

// failureStatus maps errors a client may retry, such as a lost broker
// connection, to 503.
func failureStatus(err error) int {
	if apperrors.IsRetryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorKind(err error) string {
	var encErr *rowstream.EncodeError
	if errors.As(err, &encErr) {
		return "encode"
	}
	return "source"
}
