package driver

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/foxboron/go-uefi-sct/efi/status"
)

// Observation is what a checkpoint saw when it called the device.
type Observation struct {
	Status status.Status
	// Fields are observed values, recorded as assertion context.
	Fields map[string]any
	// Value is the typed result for predicates.
	Value any
}

// Observe builds an observation from the error a device call returned.
func Observe(err error) *Observation {
	return &Observation{Status: status.Of(err), Fields: map[string]any{}}
}

func (o *Observation) With(key string, value any) *Observation {
	if o.Fields == nil {
		o.Fields = map[string]any{}
	}
	o.Fields[key] = value
	return o
}

// Predicate returns why an observation does not meet the expectation, or
// nothing when it does.
type Predicate func(*Observation) []string

// ExpectStatus accepts any of the given statuses.
func ExpectStatus(want ...status.Status) Predicate {
	return func(o *Observation) []string {
		if slices.Contains(want, o.Status) {
			return nil
		}
		names := make([]string, len(want))
		for i, w := range want {
			names[i] = w.String()
		}
		return []string{fmt.Sprintf("expected %s, got %s", strings.Join(names, " or "), o.Status)}
	}
}

// ExpectThat fails with msg when check returns false.
func ExpectThat(check func(*Observation) bool, format string, args ...any) Predicate {
	return func(o *Observation) []string {
		if check(o) {
			return nil
		}
		return []string{fmt.Sprintf(format, args...)}
	}
}

// All requires every predicate. Predicates after a failing status check are
// still evaluated so the record lists every mismatch.
func All(preds ...Predicate) Predicate {
	return func(o *Observation) []string {
		var out []string
		for _, p := range preds {
			out = append(out, p(o)...)
		}
		return out
	}
}

// Checkpoint is one row of a checkpoint table: the device operation with its
// generated input, and the expected outcome.
type Checkpoint struct {
	ID       uuid.UUID
	Title    string
	Level    Level
	Location string
	Invoke   func(*Context) (*Observation, error)
	Expect   Predicate
}

// NewCheckpoint declares a checkpoint at LevelMinimal and records the
// declaration site as its location.
func NewCheckpoint(id, title string, invoke func(*Context) (*Observation, error), expect Predicate) Checkpoint {
	loc := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		loc = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return Checkpoint{
		ID:       uuid.MustParse(id),
		Title:    title,
		Level:    LevelMinimal,
		Location: loc,
		Invoke:   invoke,
		Expect:   expect,
	}
}

// At returns the checkpoint at another level.
func (c Checkpoint) At(l Level) Checkpoint {
	c.Level = l
	return c
}

func (c Checkpoint) evaluate(o *Observation) []string {
	if c.Expect == nil {
		return ExpectStatus(status.SUCCESS)(o)
	}
	return c.Expect(o)
}

// hexdump is used for byte slices in assertion context.
func hexdump(b []byte) string {
	var buf bytes.Buffer
	for i, c := range b {
		if i > 0 && i%16 == 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "%02x", c)
	}
	return buf.String()
}
