// Package assert records conformance assertions.
//
// A Recorder is an append-only log of Records. Recording never fails: a
// failing Sink is logged and skipped so a broken reporter cannot change the
// outcome of a test case.
package assert

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Outcome int

const (
	Passed Outcome = iota
	Failed
	Warning
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "PASS"
	case Failed:
		return "FAIL"
	case Warning:
		return "WARN"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PASS":
		*o = Passed
	case "FAIL":
		*o = Failed
	case "WARN":
		*o = Warning
	default:
		return errors.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Record is a single assertion. It is immutable once recorded.
type Record struct {
	ID       uuid.UUID      `json:"id"`
	Outcome  Outcome        `json:"outcome"`
	Title    string         `json:"title"`
	Message  string         `json:"message,omitempty"`
	Location string         `json:"location,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	Time     time.Time      `json:"time"`
}

// Sink receives every record as it is made.
type Sink interface {
	Record(Record) error
}

type SinkFunc func(Record) error

func (f SinkFunc) Record(r Record) error { return f(r) }

type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Warning int `json:"warning"`
}

func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Warning
}

type Recorder struct {
	mu      sync.Mutex
	records []Record
	pending []string
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
}

func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// Message logs a free-form diagnostic. Messages are attached to the next
// record.
func (r *Recorder) Message(level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Log(context.Background(), level, msg)
	r.mu.Lock()
	r.pending = append(r.pending, msg)
	r.mu.Unlock()
}

// Record appends rec to the log and returns it as stored.
func (r *Recorder) Record(rec Record) Record {
	r.mu.Lock()
	rec.Time = r.now()
	rec.Context = maps.Clone(rec.Context)
	if len(r.pending) > 0 {
		msgs := r.pending
		if rec.Message != "" {
			msgs = append(msgs, rec.Message)
		}
		rec.Message = strings.Join(msgs, "\n")
		r.pending = nil
	}
	r.records = append(r.records, rec)
	sinks := r.sinks
	r.mu.Unlock()

	attrs := []any{
		slog.String("id", rec.ID.String()),
		slog.String("outcome", rec.Outcome.String()),
		slog.String("location", rec.Location),
	}
	if rec.Message != "" {
		attrs = append(attrs, slog.String("message", rec.Message))
	}
	level := slog.LevelInfo
	if rec.Outcome != Passed {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, rec.Title, attrs...)

	for _, s := range sinks {
		r.deliver(s, rec)
	}
	return rec
}

func (r *Recorder) deliver(s Sink, rec Record) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("assertion sink panicked", "id", rec.ID, "panic", p)
		}
	}()
	if err := s.Record(rec); err != nil {
		r.logger.Error("assertion sink failed", "id", rec.ID, "err", err)
	}
}

// Records returns a copy of the log.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Len is the number of records so far, usable as a mark for Since.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Since returns the records made after mark.
func (r *Recorder) Since(mark int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mark >= len(r.records) {
		return nil
	}
	return append([]Record(nil), r.records[mark:]...)
}

func (r *Recorder) Summary() Counts {
	return Summarize(r.Records())
}

func Summarize(records []Record) Counts {
	var c Counts
	for _, rec := range records {
		switch rec.Outcome {
		case Passed:
			c.Passed++
		case Failed:
			c.Failed++
		case Warning:
			c.Warning++
		}
	}
	return c
}
