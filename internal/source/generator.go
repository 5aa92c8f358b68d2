package source

import (
	"context"
	"io"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"

	"github.com/jittakal/kafeventcsv/pkg/event"
	"github.com/jittakal/kafeventcsv/pkg/rowstream"
)

// Library event types produced by Generator.
const (
	EventTypeBookIssued   = "com.library.books.issued"
	EventTypeBookReturned = "com.library.books.returned"

	EventSource = "library-management-system"
)

// BookData is the payload of generated library events.
type BookData struct {
	BookID     string    `json:"bookId"`
	Title      string    `json:"title"`
	ISBN       string    `json:"isbn"`
	Author     string    `json:"author"`
	Category   string    `json:"category"`
	MemberID   string    `json:"memberId"`
	MemberName string    `json:"memberName"`
	IssueDate  time.Time `json:"issueDate"`
	DueDate    time.Time `json:"dueDate"`
	BranchName string    `json:"branchName"`
	Condition  string    `json:"condition,omitempty"`
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// Interval between events. Zero emits as fast as pulled.
	Interval time.Duration
	// Count bounds the number of events. Zero is unbounded.
	Count int64
	// ReturnRatio is the percentage (0-100) of returned-book events.
	ReturnRatio int
}

// Generator produces fake library events.
type Generator struct {
	config  GeneratorConfig
	faker   faker.Faker
	logger  *slog.Logger
	now     func() time.Time
	emitted int64
	timer   *time.Timer
}

var _ rowstream.Source[event.Event] = (*Generator)(nil)

// NewGenerator creates a new event generator.
func NewGenerator(config GeneratorConfig, logger *slog.Logger) *Generator {
	if config.ReturnRatio < 0 {
		config.ReturnRatio = 0
	}
	if config.ReturnRatio > 100 {
		config.ReturnRatio = 100
	}
	return &Generator{
		config: config,
		faker:  faker.New(),
		logger: logger,
		now:    time.Now,
	}
}

// Next waits for the configured interval and returns the next event.
func (g *Generator) Next(ctx context.Context) (event.Event, error) {
	ce, err := g.NextCloudEvent(ctx)
	if err != nil {
		return event.Event{}, err
	}
	return event.FromCloudEvent(ce, g.now()), nil
}

// NextCloudEvent is like Next but returns the generated CloudEvent.
func (g *Generator) NextCloudEvent(ctx context.Context) (cloudevents.Event, error) {
	if g.config.Count > 0 && g.emitted >= g.config.Count {
		return cloudevents.Event{}, io.EOF
	}
	if err := g.wait(ctx); err != nil {
		return cloudevents.Event{}, err
	}

	var ce cloudevents.Event
	if g.faker.IntBetween(1, 100) <= g.config.ReturnRatio {
		ce = g.GenerateBookReturnedEvent()
	} else {
		ce = g.GenerateBookIssuedEvent()
	}
	g.emitted++
	return ce, nil
}

func (g *Generator) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.config.Interval <= 0 || g.emitted == 0 {
		return nil
	}

	if g.timer == nil {
		g.timer = time.NewTimer(g.config.Interval)
	} else {
		g.timer.Reset(g.config.Interval)
	}
	select {
	case <-g.timer.C:
		return nil
	case <-ctx.Done():
		g.timer.Stop()
		return ctx.Err()
	}
}

// GenerateBookIssuedEvent generates a CloudEvent for a book issued scenario.
func (g *Generator) GenerateBookIssuedEvent() cloudevents.Event {
	now := g.now()
	data := BookData{
		BookID:     g.generateBookID(),
		Title:      g.faker.Lorem().Sentence(5),
		ISBN:       g.generateISBN(),
		Author:     g.faker.Person().Name(),
		Category:   g.randomCategory(),
		MemberID:   g.generateMemberID(),
		MemberName: g.faker.Person().Name(),
		IssueDate:  now,
		DueDate:    now.Add(14 * 24 * time.Hour),
		BranchName: g.faker.Address().City() + " Branch",
	}
	return g.newEvent(EventTypeBookIssued, data, now)
}

// GenerateBookReturnedEvent generates a CloudEvent for a book returned scenario.
func (g *Generator) GenerateBookReturnedEvent() cloudevents.Event {
	now := g.now()
	issueDate := now.Add(-time.Duration(g.faker.IntBetween(7, 30)) * 24 * time.Hour)
	data := BookData{
		BookID:     g.generateBookID(),
		Title:      g.faker.Lorem().Sentence(5),
		ISBN:       g.generateISBN(),
		Author:     g.faker.Person().Name(),
		Category:   g.randomCategory(),
		MemberID:   g.generateMemberID(),
		MemberName: g.faker.Person().Name(),
		IssueDate:  issueDate,
		DueDate:    issueDate.Add(14 * 24 * time.Hour),
		BranchName: g.faker.Address().City() + " Branch",
		Condition:  g.randomCondition(),
	}
	return g.newEvent(EventTypeBookReturned, data, now)
}

func (g *Generator) newEvent(typ string, data BookData, at time.Time) cloudevents.Event {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(uuid.New().String())
	ce.SetType(typ)
	ce.SetSource(EventSource)
	ce.SetSubject(data.BookID)
	ce.SetTime(at)

	if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
		g.logger.Error("failed to set event data", "error", err, "type", typ)
	}
	return ce
}

func (g *Generator) generateBookID() string {
	return "B" + g.faker.UUID().V4()[0:8]
}

func (g *Generator) generateMemberID() string {
	return "M" + g.faker.UUID().V4()[0:8]
}

func (g *Generator) generateISBN() string {
	return "978-" + g.faker.RandomStringWithLength(10)
}

func (g *Generator) randomCategory() string {
	categories := []string{
		"Fiction", "Non-Fiction", "Science", "Technology", "History",
		"Biography", "Mystery", "Fantasy", "Business", "Programming",
	}
	return categories[g.faker.IntBetween(0, len(categories)-1)]
}

func (g *Generator) randomCondition() string {
	conditions := []string{"good", "fair", "damaged"}
	weights := []int{70, 25, 5}

	r := g.faker.IntBetween(1, 100)
	cumulative := 0
	for i, weight := range weights {
		cumulative += weight
		if r <= cumulative {
			return conditions[i]
		}
	}
	return conditions[0]
}
