// Package anomaly collects reports of source data that could not be merged
// safely, such as a linkage lookup that matched several records.
//
// Reports are delivered to a Sink. The package provides an in-memory sink,
// a sink that logs through zerolog, a sink that appends to a YAML file, and
// Multi to fan a report out to several sinks.
package anomaly

import (
	"context"
	"sync"

	"github.com/agentstation/utc"
	"github.com/google/uuid"

	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/logging"
)

// Report describes one piece of bad data from a source.
type Report struct {
	ID         string         `yaml:"id" json:"id"`
	Source     string         `yaml:"source" json:"source"`
	Identifier string         `yaml:"identifier" json:"identifier"`
	Message    string         `yaml:"message" json:"message"`
	Data       map[string]any `yaml:"data,omitempty" json:"data,omitempty"`
	Time       utc.Time       `yaml:"time" json:"time"`
}

// New creates a report stamped with a fresh id and the current time.
func New(source, identifier, message string, data map[string]any) Report {
	return Report{
		ID:         uuid.NewString(),
		Source:     source,
		Identifier: identifier,
		Message:    message,
		Data:       data,
		Time:       utc.Now(),
	}
}

// Sink receives anomaly reports.
type Sink interface {
	Report(ctx context.Context, r Report) error
}

// Memory keeps reports in memory. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	reports []Report
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Report stores r.
func (m *Memory) Report(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

// Reports returns a copy of the stored reports in arrival order.
func (m *Memory) Reports() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Report(nil), m.reports...)
}

// Len returns the number of stored reports.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// Log writes each report as a warning to the context logger.
type Log struct{}

// NewLog creates a logging sink.
func NewLog() Log {
	return Log{}
}

// Report logs r.
func (Log) Report(ctx context.Context, r Report) error {
	event := logging.FromContext(ctx).Warn().
		Str("anomaly", r.ID).
		Str("source", r.Source).
		Str("identifier", r.Identifier)
	if len(r.Data) > 0 {
		event = event.Interface("data", r.Data)
	}
	event.Msg(r.Message)
	return nil
}

// Multi delivers every report to each sink in order.
type Multi []Sink

// Report forwards r to all sinks and joins their errors.
func (m Multi) Report(ctx context.Context, r Report) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Counter wraps a sink and counts the reports it forwards.
type Counter struct {
	Sink
	mu    sync.Mutex
	count int
}

// NewCounter wraps s. A nil s only counts.
func NewCounter(s Sink) *Counter {
	return &Counter{Sink: s}
}

// Report counts r and forwards it.
func (c *Counter) Report(ctx context.Context, r Report) error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	if c.Sink == nil {
		return nil
	}
	return c.Sink.Report(ctx, r)
}

// Count returns the number of reports seen.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
