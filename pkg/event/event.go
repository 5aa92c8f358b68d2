// Package event defines the timestamped event record streamed as CSV and its
// mapping from CloudEvents.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// TimeLayout is the textual form of Event.Time: RFC 3339 with a numeric
// offset and trimmed fractional seconds. It parses with time.RFC3339Nano.
const TimeLayout = "2006-01-02T15:04:05.999999999-07:00"

// Arity is the number of CSV fields of an Event.
const Arity = 2

// Columns returns the CSV header for Event rows.
func Columns() []string {
	return []string{"timestamp", "event"}
}

// Event is a single occurrence with a timestamp and a name.
type Event struct {
	Time time.Time
	Name string
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// Validator validates CloudEvents before they become records.
type Validator interface {
	Validate(ce *cloudevents.Event) error
}

// Fields appends the CSV fields of e to dst. It is a rowstream.FieldsFunc.
func Fields(e Event, dst []string) ([]string, error) {
	return append(dst, FormatTime(e.Time), e.Name), nil
}

var _ rowstream.FieldsFunc[Event] = Fields

// FormatTime renders t using TimeLayout. UTC is written as +00:00.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime parses a timestamp produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// FromCloudEvent maps a CloudEvent to an Event. The name is the CloudEvent
// type, suffixed with "/subject" when a subject is set. fallback is used when
// the CloudEvent carries no time, typically the transport timestamp.
func FromCloudEvent(ce cloudevents.Event, fallback time.Time) Event {
	name := ce.Type()
	if subject := ce.Subject(); subject != "" {
		name += "/" + subject
	}

	t := ce.Time()
	if t.IsZero() {
		t = fallback
	}
	return Event{Time: t, Name: name}
}

// DecodeCloudEvent decodes a structured-mode JSON CloudEvent.
func DecodeCloudEvent(data []byte) (*cloudevents.Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode cloudevent: empty payload")
	}
	ce := cloudevents.NewEvent()
	if err := json.Unmarshal(data, &ce); err != nil {
		return nil, fmt.Errorf("decode cloudevent: %w", err)
	}
	return &ce, nil
}

// NewStream returns a Row Encoder Stream over src. With header set the
// first chunk is the Columns row.
func NewStream(src rowstream.Source[Event], header bool) (*rowstream.Stream[Event], error) {
	cfg := rowstream.Config{Arity: Arity}
	if header {
		cfg.Header = Columns()
	}
	return rowstream.New(src, Fields, cfg)
}
