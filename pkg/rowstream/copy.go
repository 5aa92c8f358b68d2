package rowstream

import (
	"context"
	"errors"
	"io"
)

// Copy writes every chunk from src to dst until src is exhausted.
// It returns the number of bytes written. Exhaustion is not an error.
func Copy(ctx context.Context, dst io.Writer, src Source[[]byte]) (int64, error) {
	var written int64
	for {
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		n, err := dst.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if n != len(chunk) {
			return written, io.ErrShortWrite
		}
	}
}

// NewReader returns an io.Reader that pulls chunks from src on demand.
// Errors from src, including io.EOF, are returned by Read once all bytes
// already pulled have been consumed.
func NewReader(ctx context.Context, src Source[[]byte]) io.Reader {
	return &reader{ctx: ctx, src: src}
}

type reader struct {
	ctx     context.Context
	src     Source[[]byte]
	pending []byte
	err     error
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err := r.src.Next(r.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.EOF
			}
			r.err = err
			continue
		}
		r.pending = chunk
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
