// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrSourceClosed   = errors.New("source is closed")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrExporterClosed = errors.New("exporter is closed")
	ErrConnectionLost = errors.New("connection lost")
	ErrUnknownSource  = errors.New("unknown source kind")
	ErrBufferFull     = errors.New("buffer is full")
)

// DecodeError reports a message that could not be turned into an event.
// Origin identifies where the message came from, e.g. "orders-2@1042" for a
// Kafka partition offset or an SQS message ID.
type DecodeError struct {
	Origin string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: origin=%s: %v", e.Origin, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError represents an event validation failure.
type ValidationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: event_id=%s field=%s: %s",
		e.EventID, e.Field, e.Reason)
}

// Is makes every ValidationError match ErrInvalidEvent.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEvent
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrConnectionLost)
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	// Write and upload operations are generally retryable
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable reports false: the same payload decodes the same way every time.
func (e *DecodeError) IsRetryable() bool {
	return false
}
