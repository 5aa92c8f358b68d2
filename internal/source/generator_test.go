package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jittakal/kafeventcsv/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerator_Count(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Count: 3}, testLogger())

	for i := 0; i < 3; i++ {
		e, err := g.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if !strings.HasPrefix(e.Name, "com.library.books.") {
			t.Errorf("Name = %q", e.Name)
		}
		if e.Time.IsZero() {
			t.Error("Time should be set")
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := g.Next(context.Background()); err != io.EOF {
			t.Errorf("Next() after count = %v, want io.EOF", err)
		}
	}
}

func TestGenerator_ReturnRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio int
		want  string
	}{
		{"all issued", 0, EventTypeBookIssued},
		{"all returned", 100, EventTypeBookReturned},
		{"clamped high", 250, EventTypeBookReturned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(GeneratorConfig{Count: 10, ReturnRatio: tt.ratio}, testLogger())
			for i := 0; i < 10; i++ {
				ce, err := g.NextCloudEvent(context.Background())
				if err != nil {
					t.Fatalf("NextCloudEvent() error = %v", err)
				}
				if ce.Type() != tt.want {
					t.Fatalf("Type() = %q, want %q", ce.Type(), tt.want)
				}
			}
		})
	}
}

func TestGenerator_EventsAreValid(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, testLogger())
	v := validator.NewCloudEventsValidator(validator.WithTypePrefixes("com.library."))

	issued := g.GenerateBookIssuedEvent()
	returned := g.GenerateBookReturnedEvent()

	if err := v.Validate(&issued); err != nil {
		t.Errorf("issued event invalid: %v", err)
	}
	if err := v.Validate(&returned); err != nil {
		t.Errorf("returned event invalid: %v", err)
	}

	var data BookData
	if err := json.Unmarshal(returned.Data(), &data); err != nil {
		t.Fatalf("returned data is not JSON: %v", err)
	}
	if data.Condition == "" {
		t.Error("returned event should carry a condition")
	}
	if returned.Subject() != data.BookID {
		t.Errorf("Subject() = %q, want book id %q", returned.Subject(), data.BookID)
	}
}

func TestGenerator_FixedClock(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(GeneratorConfig{Count: 1}, testLogger())
	g.now = func() time.Time { return at }

	e, err := g.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !e.Time.Equal(at) {
		t.Errorf("Time = %v, want %v", e.Time, at)
	}
}

func TestGenerator_IntervalHonoursContext(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Interval: time.Hour}, testLogger())

	if _, err := g.Next(context.Background()); err != nil {
		t.Fatalf("first Next() should not wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() = %v, want context.DeadlineExceeded", err)
	}
}
