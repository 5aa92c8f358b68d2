package source

import (
	"context"
	"io"

	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// Limit returns a Source that yields at most n values from src, then io.EOF.
// A non-positive n means no limit and src is returned as is.
func Limit[T any](src rowstream.Source[T], n int64) rowstream.Source[T] {
	if n <= 0 {
		return src
	}
	return &limited[T]{src: src, remaining: n}
}

type limited[T any] struct {
	src       rowstream.Source[T]
	remaining int64
}

func (l *limited[T]) Next(ctx context.Context) (T, error) {
	if l.remaining <= 0 {
		var zero T
		return zero, io.EOF
	}
	v, err := l.src.Next(ctx)
	if err != nil {
		return v, err
	}
	l.remaining--
	return v, nil
}
