package rowstream

import (
	"errors"
	"fmt"
)

// Configuration errors returned by New.
var (
	ErrNilSource   = errors.New("rowstream: source is nil")
	ErrNilFields   = errors.New("rowstream: fields func is nil")
	ErrHeaderArity = errors.New("rowstream: header column count does not match record arity")
	ErrArity       = errors.New("rowstream: invalid arity")
	ErrTerminator  = errors.New("rowstream: unsupported line terminator")
)

// ErrEmptyRecord is the cause of an EncodeError for a record with no fields.
var ErrEmptyRecord = errors.New("record has no fields")

// ArityError reports a record whose field count differs from the stream's arity.
type ArityError struct {
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("record has %d fields, stream arity is %d", e.Got, e.Want)
}

// EncodeError is a fatal failure to encode a row. Row is the 1-based data row
// number, or 0 for the header row.
//
// Once a Stream returns an EncodeError it keeps returning the same error.
type EncodeError struct {
	Row int64
	Err error
}

func (e *EncodeError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("rowstream: encode header: %v", e.Err)
	}
	return fmt.Sprintf("rowstream: encode row %d: %v", e.Row, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
