package driver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/foxboron/go-uefi-sct/sct/assert"
	"github.com/foxboron/go-uefi-sct/sct/fixture"
	"github.com/foxboron/go-uefi-sct/sct/snapshot"
	"github.com/foxboron/go-uefi-sct/tcg2"
)

// Level is the test thoroughness. A checkpoint runs when its level is at or
// below the level of the run.
type Level int

const (
	LevelMinimal Level = iota + 1
	LevelDefault
	LevelExhaustive
)

func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelDefault:
		return "default"
	case LevelExhaustive:
		return "exhaustive"
	}
	return "unknown"
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "minimal":
		return LevelMinimal, nil
	case "", "default":
		return LevelDefault, nil
	case "exhaustive":
		return LevelExhaustive, nil
	}
	return 0, errors.Errorf("unknown test level %q", s)
}

// Context carries everything a test case touches. It is built once per run
// and handed to every test case. Devices a test case does not use may be
// nil.
type Context struct {
	context.Context

	Logger    *slog.Logger
	Recorder  *assert.Recorder
	Fixtures  *fixture.Store
	Snapshots *snapshot.Manager
	Variables efivarfs.VariableService
	TCG2      tcg2.Protocol
	Level     Level
}

// NewContext returns a context with a recorder and the default level.
func NewContext(parent context.Context, logger *slog.Logger, sinks ...assert.Sink) *Context {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Context:  parent,
		Logger:   logger,
		Recorder: assert.NewRecorder(logger, sinks...),
		Level:    LevelDefault,
	}
}

// WithVariables wires the variable service and a snapshot manager over it.
func (c *Context) WithVariables(vars efivarfs.VariableService) *Context {
	c.Variables = vars
	c.Snapshots = snapshot.NewManager(vars, c.Logger)
	return c
}

// LoadFixture loads a fixture, failures are returned as *SetupError.
func (c *Context) LoadFixture(name string) ([]byte, error) {
	if c.Fixtures == nil {
		return nil, FixtureError(name, fixture.ErrNotFound)
	}
	f, err := c.Fixtures.Load(name)
	if err != nil {
		return nil, FixtureError(name, err)
	}
	c.Logger.Debug("loaded fixture", "name", name, "size", f.Size())
	return f.Data, nil
}
