// Package source provides record producers feeding a rowstream.Stream.
package source

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// ErrAbandoned is returned to producers once the consumer has abandoned a Handoff.
var ErrAbandoned = errors.New("source: consumer abandoned the stream")

// Handoff is a bounded producer/consumer queue. Producers call Send and
// finally Close; the single consumer pulls with Next.
//
// Send blocks while the queue is full and Next blocks while it is empty.
// Close must not be called concurrently with Send.
type Handoff[T any] struct {
	ch   chan T
	done chan struct{}

	closeOnce   sync.Once
	abandonOnce sync.Once

	mu  sync.Mutex
	err error
}

var _ rowstream.Source[struct{}] = (*Handoff[struct{}])(nil)

// NewHandoff returns a Handoff holding at most capacity pending values.
// A capacity below 1 is treated as 1.
func NewHandoff[T any](capacity int) *Handoff[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Handoff[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues v. It returns ErrAbandoned if the consumer has gone away, or
// ctx.Err() if ctx ends while the queue is full.
func (h *Handoff[T]) Send(ctx context.Context, v T) error {
	select {
	case <-h.done:
		return ErrAbandoned
	default:
	}

	select {
	case h.ch <- v:
		return nil
	case <-h.done:
		return ErrAbandoned
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of the sequence. The consumer receives the pending
// values and then io.EOF.
func (h *Handoff[T]) Close() {
	h.CloseWithError(nil)
}

// CloseWithError is like Close but the consumer receives err instead of
// io.EOF once the pending values are drained. Only the first call has effect.
func (h *Handoff[T]) CloseWithError(err error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.ch)
	})
}

// Abandon tells producers that no more values will be consumed. Blocked and
// later Send calls return ErrAbandoned, as do later Next calls.
func (h *Handoff[T]) Abandon() {
	h.abandonOnce.Do(func() {
		close(h.done)
	})
}

// Done is closed when the consumer abandons the Handoff.
func (h *Handoff[T]) Done() <-chan struct{} {
	return h.done
}

// Next returns the next value, blocking until one is available, the
// Handoff is closed or ctx ends.
func (h *Handoff[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-h.done:
		return zero, ErrAbandoned
	default:
	}

	select {
	case v, ok := <-h.ch:
		if !ok {
			return zero, h.closeErr()
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len returns the number of pending values.
func (h *Handoff[T]) Len() int {
	return len(h.ch)
}

func (h *Handoff[T]) closeErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	return io.EOF
}
