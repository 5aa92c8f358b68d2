package validator

import (
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
)

func newEvent(id, source, typ string) *cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID(id)
	e.SetSource(source)
	e.SetType(typ)
	return &e
}

func TestNewCloudEventsValidator(t *testing.T) {
	validator := NewCloudEventsValidator()
	if validator == nil {
		t.Fatal("expected non-nil validator")
	}
}

func TestCloudEventsValidator_ValidateSuccess(t *testing.T) {
	tests := []struct {
		name      string
		validator *CloudEventsValidator
		event     *cloudevents.Event
	}{
		{
			name:      "valid 1.0 event",
			validator: NewCloudEventsValidator(),
			event:     newEvent("test-id", "test-source", "test.event"),
		},
		{
			name:      "valid event with data",
			validator: NewCloudEventsValidator(),
			event: func() *cloudevents.Event {
				e := newEvent("test-id", "test-source", "test.event")
				_ = e.SetData(cloudevents.ApplicationJSON, map[string]string{"test": "data"})
				return e
			}(),
		},
		{
			name:      "type matches prefix",
			validator: NewCloudEventsValidator(WithTypePrefixes("library.", "user.")),
			event:     newEvent("test-id", "test-source", "user.created"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.validator.Validate(tt.event); err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestCloudEventsValidator_ValidateErrors(t *testing.T) {
	tests := []struct {
		name      string
		validator *CloudEventsValidator
		event     *cloudevents.Event
		wantField string
	}{
		{
			name:      "nil event",
			validator: NewCloudEventsValidator(),
			event:     nil,
			wantField: "event",
		},
		{
			name:      "missing context",
			validator: NewCloudEventsValidator(),
			event:     &cloudevents.Event{},
			wantField: "specversion",
		},
		{
			name:      "missing id",
			validator: NewCloudEventsValidator(),
			event:     newEvent("", "test-source", "test.event"),
			wantField: "id",
		},
		{
			name:      "missing source",
			validator: NewCloudEventsValidator(),
			event:     newEvent("test-id", "", "test.event"),
			wantField: "source",
		},
		{
			name:      "missing type",
			validator: NewCloudEventsValidator(),
			event:     newEvent("test-id", "test-source", ""),
			wantField: "type",
		},
		{
			name:      "unsupported specversion",
			validator: NewCloudEventsValidator(),
			event: func() *cloudevents.Event {
				e := cloudevents.NewEvent(cloudevents.VersionV03)
				e.SetID("test-id")
				e.SetSource("test-source")
				e.SetType("test.event")
				return &e
			}(),
			wantField: "specversion",
		},
		{
			name:      "type outside prefixes",
			validator: NewCloudEventsValidator(WithTypePrefixes("library.")),
			event:     newEvent("test-id", "test-source", "billing.charged"),
			wantField: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validator.Validate(tt.event)
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}

			var valErr *apperrors.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("error = %T, want *ValidationError", err)
			}
			if valErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", valErr.Field, tt.wantField)
			}
			if !errors.Is(err, apperrors.ErrInvalidEvent) {
				t.Error("error should match ErrInvalidEvent")
			}
		})
	}
}

func TestWithTypePrefixes_IgnoresBlank(t *testing.T) {
	v := NewCloudEventsValidator(WithTypePrefixes("", "  "))
	if len(v.typePrefixes) != 0 {
		t.Errorf("typePrefixes = %v, want none", v.typePrefixes)
	}
	if err := v.Validate(newEvent("id", "src", "anything")); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
