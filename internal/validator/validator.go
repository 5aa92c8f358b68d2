// Package validator provides CloudEvents validation.
package validator

import (
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/jittakal/kafeventcsv/internal/errors"
	"github.com/jittakal/kafeventcsv/pkg/event"
)

// CloudEventsValidator checks the required CloudEvents 1.0 attributes.
type CloudEventsValidator struct {
	typePrefixes []string
}

var _ event.Validator = (*CloudEventsValidator)(nil)

// Option configures a CloudEventsValidator.
type Option func(*CloudEventsValidator)

// WithTypePrefixes restricts accepted events to types starting with one of
// prefixes. No prefixes accepts every type.
func WithTypePrefixes(prefixes ...string) Option {
	return func(v *CloudEventsValidator) {
		for _, p := range prefixes {
			if p = strings.TrimSpace(p); p != "" {
				v.typePrefixes = append(v.typePrefixes, p)
			}
		}
	}
}

// NewCloudEventsValidator creates a new CloudEvents validator.
func NewCloudEventsValidator(opts ...Option) *CloudEventsValidator {
	v := &CloudEventsValidator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate validates a CloudEvent.
func (v *CloudEventsValidator) Validate(e *cloudevents.Event) error {
	if e == nil {
		return &errors.ValidationError{Field: "event", Reason: "event is nil"}
	}
	if e.Context == nil {
		return &errors.ValidationError{Field: "specversion", Reason: "required field is missing"}
	}

	required := []struct {
		field string
		value string
	}{
		{"id", e.ID()},
		{"source", e.Source()},
		{"specversion", e.SpecVersion()},
		{"type", e.Type()},
	}
	for _, r := range required {
		if r.value == "" {
			return &errors.ValidationError{
				EventID: e.ID(),
				Field:   r.field,
				Reason:  "required field is missing",
			}
		}
	}

	if e.SpecVersion() != cloudevents.VersionV1 {
		return &errors.ValidationError{
			EventID: e.ID(),
			Field:   "specversion",
			Reason:  fmt.Sprintf("unsupported version: %s (supported: 1.0)", e.SpecVersion()),
		}
	}

	if len(v.typePrefixes) > 0 && !v.acceptsType(e.Type()) {
		return &errors.ValidationError{
			EventID: e.ID(),
			Field:   "type",
			Reason:  fmt.Sprintf("type %q not in accepted prefixes %v", e.Type(), v.typePrefixes),
		}
	}

	return nil
}

func (v *CloudEventsValidator) acceptsType(typ string) bool {
	for _, p := range v.typePrefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}
