package rowstream

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Line terminators accepted by Config.Terminator.
const (
	CRLF = "\r\n"
	LF   = "\n"
)

// initialBufferSize is the starting capacity of the reusable row buffer.
const initialBufferSize = 256

// FieldsFunc appends the ordered fields of rec to dst and returns the result.
// dst is reused across rows; implementations must not retain it.
type FieldsFunc[T any] func(rec T, dst []string) ([]string, error)

// Config configures a Stream.
type Config struct {
	// Header is emitted as the first chunk when non-empty.
	Header []string

	// Arity is the number of fields every record must have. Zero means the
	// header length, or the first record's field count when there is no header.
	Arity int

	// Terminator ends every row. Empty selects CRLF.
	Terminator string
}

// Stats reports what a Stream has emitted so far.
type Stats struct {
	Rows          int64
	Bytes         int64
	HeaderEmitted bool
}

type state int

const (
	stateAwaitingHeader state = iota
	stateAwaitingRecord
	stateTerminated
	stateFailed
)

// Stream lazily encodes records pulled from a Source into CSV rows, one
// chunk per record, with an optional header chunk first.
//
// A Stream is itself a Source[[]byte]. It is not safe for concurrent use:
// only one Next call may be in flight at a time.
type Stream[T any] struct {
	src    Source[T]
	fields FieldsFunc[T]
	header []string
	arity  int
	crlf   bool

	buf bytes.Buffer
	w   *csv.Writer
	row []string

	state state
	err   error
	stats Stats
}

var _ Source[[]byte] = (*Stream[struct{}])(nil)

// New creates a Stream reading records from src and converting each record
// to fields with fields.
func New[T any](src Source[T], fields FieldsFunc[T], cfg Config) (*Stream[T], error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if fields == nil {
		return nil, ErrNilFields
	}

	crlf := true
	switch cfg.Terminator {
	case "", CRLF:
	case LF:
		crlf = false
	default:
		return nil, fmt.Errorf("%w: %q", ErrTerminator, cfg.Terminator)
	}

	if cfg.Arity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrArity, cfg.Arity)
	}
	arity := cfg.Arity
	if len(cfg.Header) > 0 {
		if arity > 0 && arity != len(cfg.Header) {
			return nil, fmt.Errorf("%w: header has %d columns, records have %d fields",
				ErrHeaderArity, len(cfg.Header), arity)
		}
		arity = len(cfg.Header)
	}

	s := &Stream[T]{
		src:    src,
		fields: fields,
		header: slices.Clone(cfg.Header),
		arity:  arity,
		crlf:   crlf,
		state:  stateAwaitingRecord,
	}
	s.buf.Grow(initialBufferSize)
	// The writer always ends records with '\n'; encode swaps in CRLF so that
	// carriage returns inside quoted fields are written verbatim.
	s.w = csv.NewWriter(&s.buf)
	if len(s.header) > 0 {
		s.state = stateAwaitingHeader
		s.row = make([]string, 0, len(s.header))
	}
	return s, nil
}

// Next returns the next encoded row.
//
// It returns io.EOF once the upstream source is exhausted, and keeps
// returning io.EOF afterwards. Upstream failures are returned unchanged and
// leave the stream usable. Encoding failures are returned as *EncodeError and
// are permanent.
func (s *Stream[T]) Next(ctx context.Context) ([]byte, error) {
	switch s.state {
	case stateTerminated:
		return nil, io.EOF
	case stateFailed:
		return nil, s.err
	case stateAwaitingHeader:
		chunk, err := s.encode(s.header)
		if err != nil {
			return nil, s.fail(0, err)
		}
		s.state = stateAwaitingRecord
		s.stats.HeaderEmitted = true
		s.stats.Bytes += int64(len(chunk))
		return chunk, nil
	}

	rec, err := s.src.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.state = stateTerminated
			return nil, io.EOF
		}
		return nil, err
	}

	rowNum := s.stats.Rows + 1
	fields, err := s.fields(rec, s.row[:0])
	if err != nil {
		return nil, s.fail(rowNum, err)
	}
	s.row = fields

	switch {
	case len(fields) == 0:
		return nil, s.fail(rowNum, ErrEmptyRecord)
	case s.arity == 0:
		s.arity = len(fields)
	case len(fields) != s.arity:
		return nil, s.fail(rowNum, &ArityError{Want: s.arity, Got: len(fields)})
	}

	chunk, err := s.encode(fields)
	if err != nil {
		return nil, s.fail(rowNum, err)
	}
	s.stats.Rows++
	s.stats.Bytes += int64(len(chunk))
	return chunk, nil
}

// Stats returns counters for the rows emitted so far.
func (s *Stream[T]) Stats() Stats {
	return s.stats
}

// encode writes one row into the reusable buffer and returns an owned copy.
// The buffer is empty when encode returns.
func (s *Stream[T]) encode(fields []string) ([]byte, error) {
	s.buf.Reset()
	defer s.buf.Reset()

	if len(fields) == 1 && fields[0] == "" {
		// A lone empty field would otherwise be a blank line, which
		// readers skip.
		s.buf.WriteString(`""`)
		s.buf.WriteString(s.terminator())
	} else {
		if err := s.w.Write(fields); err != nil {
			return nil, err
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			return nil, err
		}
		if n := s.buf.Len(); s.crlf && n > 0 && s.buf.Bytes()[n-1] == '\n' {
			s.buf.Truncate(n - 1)
			s.buf.WriteString(CRLF)
		}
	}

	return bytes.Clone(s.buf.Bytes()), nil
}

func (s *Stream[T]) terminator() string {
	if s.crlf {
		return CRLF
	}
	return LF
}

func (s *Stream[T]) fail(row int64, err error) error {
	s.err = &EncodeError{Row: row, Err: err}
	s.state = stateFailed
	s.row = nil
	return s.err
}
