// Package rowstream encodes a lazy sequence of records into a lazy sequence of
// CSV rows.
//
// A Stream pulls one record at a time from a Source and returns exactly one
// encoded chunk for it. When a header is configured it is returned first,
// without touching the source:
//
//	src := rowstream.FromChannel(events)
//	s, err := rowstream.New(src, fields, rowstream.Config{
//	    Header: []string{"timestamp", "event"},
//	})
//	if err != nil {
//	    return err
//	}
//	for {
//	    chunk, err := s.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    w.Write(chunk)
//	}
//
// # Row Format
//
// Fields are separated by commas and rows end with CRLF, or LF when
// configured. A field containing a comma, a double quote, CR or LF is wrapped
// in double quotes with embedded quotes doubled. Fields starting with a space
// are quoted as well, following encoding/csv.
//
// # Chunks
//
// Every chunk is a fresh slice owned by the caller. The stream encodes into a
// single internal buffer that is cleared after each row, so bytes of one row
// never appear in another.
//
// # Errors
//
// Next reports exhaustion with io.EOF and keeps doing so. Errors from the
// source are returned unchanged. Failures while encoding are returned as
// *EncodeError and the stream stays failed.
//
// # Consumers
//
// A Stream is a Source[[]byte], so Copy drains it into any io.Writer and
// NewReader exposes it as an io.Reader for upload APIs.
package rowstream
