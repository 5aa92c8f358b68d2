// Package event defines the record streamed by kafeventcsv.
//
// An Event is a timestamp and a name. Each Event becomes one CSV row with the
// columns "timestamp" and "event":
//
//	timestamp,event
//	2024-01-01T00:00:00+00:00,some-event
//
// # Timestamps
//
// Timestamps are written with TimeLayout, RFC 3339 with a numeric offset.
// UTC is rendered as +00:00 rather than Z and fractional seconds are trimmed.
// ParseTime reads them back.
//
// # CloudEvents
//
// Kafka and SQS deliver structured-mode CloudEvents. DecodeCloudEvent parses
// the JSON envelope and FromCloudEvent maps it to an Event:
//
//	ce, err := event.DecodeCloudEvent(msg.Value)
//	if err != nil {
//	    return err
//	}
//	e := event.FromCloudEvent(*ce, msg.Timestamp)
//
// # Streams
//
// NewStream wires an Event source into a rowstream.Stream with the Event
// columns as the optional header.
package event
