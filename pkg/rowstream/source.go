package rowstream

import (
	"context"
	"io"
)

// Source is a lazy, pull-based sequence of values.
//
// Next blocks until a value is available, the sequence is exhausted or ctx is
// done. Exhaustion is reported as io.EOF; any other error is a failure of the
// source itself and is never confused with exhaustion.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc[T any] func(ctx context.Context) (T, error)

// Next calls f(ctx).
func (f SourceFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// FromChannel returns a Source that receives from ch.
// A closed channel is reported as io.EOF.
func FromChannel[T any](ch <-chan T) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (T, error) {
		var zero T
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return zero, io.EOF
			}
			return v, nil
		}
	})
}

// FromSlice returns a Source that yields items in order and then io.EOF.
func FromSlice[T any](items []T) Source[T] {
	return &sliceSource[T]{items: items}
}

type sliceSource[T any] struct {
	items []T
	next  int
}

func (s *sliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.next >= len(s.items) {
		return zero, io.EOF
	}
	v := s.items[s.next]
	s.next++
	return v, nil
}
