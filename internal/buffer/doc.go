// Package buffer provides thread-safe buffering for encoded CSV rows.
//
// A Segment collects the rows of one export object until it is full or a
// rotation policy decides to flush it:
//
//	seg := buffer.New(header, maxSizeBytes, maxRecords)
//
//	for {
//	    row, err := stream.Next(ctx)
//	    ...
//	    if err := seg.Add(row); errors.Is(err, apperrors.ErrBufferFull) {
//	        upload(seg.Drain())
//	        _ = seg.Add(row)
//	    }
//	}
//
// # Header
//
// Every drained object starts with the header given to New, so each file is
// a complete CSV document on its own. The header does not count toward the
// size or record limits, and an empty segment drains to nil.
//
// # Statistics
//
// Stats reports the buffered record count, the row bytes and the first and
// last write times, which storage rotation policies consume.
package buffer
