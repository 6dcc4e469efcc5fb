// Package driver runs conformance test cases.
//
// A test case is a table of checkpoints. The driver checks preconditions,
// snapshots the state the test case destroys, runs every checkpoint at or
// below the requested level and restores the state again. Every checkpoint
// that runs produces exactly one record.
package driver

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/foxboron/go-uefi-sct/sct/assert"
	"github.com/foxboron/go-uefi-sct/sct/snapshot"
)

type State int

const (
	Init State = iota
	SnapshotTaken
	ChecksRunning
	Restoring
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case SnapshotTaken:
		return "snapshot-taken"
	case ChecksRunning:
		return "checks-running"
	case Restoring:
		return "restoring"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type TestCase struct {
	Name        string
	GUID        uuid.UUID
	Description string

	// Precondition is checked before anything is touched. An error aborts
	// the test case.
	Precondition func(*Context) error
	// Snapshot lists the state destroyed by the checkpoints.
	Snapshot []snapshot.Item
	// Restorers override the raw write back for individual variables.
	Restorers map[efivar.Efivar]RestoreFunc
	// RestoreID identifies the warnings recorded for failed restores.
	RestoreID uuid.UUID

	Checkpoints []Checkpoint
}

// RestoreFunc puts a captured variable back. It runs with the context of the
// test case so it can load fixtures.
type RestoreFunc func(ctx *Context, s *snapshot.Snapshot) error

type Result struct {
	TestCase string
	GUID     uuid.UUID
	State    State
	Records  []assert.Record
	// Skipped counts checkpoints above the run level.
	Skipped  int
	SetupErr *SetupError
	Duration time.Duration
}

// Passed reports whether the test case completed without failures.
func (r *Result) Passed() bool {
	if r.SetupErr != nil {
		return false
	}
	return assert.Summarize(r.Records).Failed == 0
}

// Run executes a test case. The returned error is non-nil only when the test
// case could not be carried out, and is then a *SetupError.
func Run(ctx *Context, tc *TestCase) (*Result, error) {
	start := time.Now()
	log := ctx.Logger.With("test", tc.Name)
	mark := ctx.Recorder.Len()
	res := &Result{TestCase: tc.Name, GUID: tc.GUID, State: Init}

	log.Debug("entering test case", "guid", tc.GUID.String(), "level", ctx.Level.String())

	enter := func(state State, args ...any) {
		res.State = state
		log.Debug("state", append([]any{"state", state.String()}, args...)...)
	}

	finish := func(state State, se *SetupError) (*Result, error) {
		res.State = state
		res.Records = ctx.Recorder.Since(mark)
		res.Duration = time.Since(start)
		log.Debug("leaving test case", "state", state.String(), "records", len(res.Records))
		if se != nil {
			se.TestCase = tc.Name
			res.SetupErr = se
			log.Error("test case aborted", "status", se.Status.String(), "err", se.Err)
			return res, se
		}
		return res, nil
	}

	if tc.Precondition != nil {
		if err := tc.Precondition(ctx); err != nil {
			return finish(Aborted, asSetupError(err))
		}
	}

	if (len(tc.Snapshot) > 0 || len(tc.Restorers) > 0) && ctx.Snapshots == nil {
		return finish(Aborted, Setup(status.UNSUPPORTED, errors.New("test case needs variable services")))
	}
	for v, r := range tc.Restorers {
		ctx.Snapshots.SetRestorer(v, func(_ efivarfs.VariableService, s *snapshot.Snapshot) error {
			return r(ctx, s)
		})
	}
	defer func() {
		for v := range tc.Restorers {
			ctx.Snapshots.SetRestorer(v, nil)
		}
	}()

	var snaps []*snapshot.Snapshot
	for _, item := range tc.Snapshot {
		s, err := ctx.Snapshots.Snapshot(item)
		if err != nil {
			se := snapshotError(err)
			restoreAll(ctx, tc, snaps, log)
			return finish(Aborted, se)
		}
		snaps = append(snaps, s)
	}
	enter(SnapshotTaken, "snapshots", len(snaps))
	enter(ChecksRunning)
	var setupErr *SetupError
	for _, cp := range tc.Checkpoints {
		if cp.Level > ctx.Level {
			res.Skipped++
			log.Debug("skipping checkpoint", "title", cp.Title, "level", cp.Level.String())
			continue
		}
		if err := runCheckpoint(ctx, cp); err != nil {
			setupErr = asSetupError(err)
			setupErr.Checkpoint = cp.Title
			break
		}
	}

	enter(Restoring)
	restoreAll(ctx, tc, snaps, log)

	if setupErr != nil {
		return finish(Aborted, setupErr)
	}
	return finish(Done, nil)
}

func runCheckpoint(ctx *Context, cp Checkpoint) error {
	obs, err := cp.Invoke(ctx)
	if err != nil {
		return err
	}
	if obs == nil {
		return Setup(status.DEVICE_ERROR, errors.Errorf("checkpoint %q returned no observation", cp.Title))
	}
	rec := assert.Record{
		ID:       cp.ID,
		Outcome:  assert.Passed,
		Title:    cp.Title,
		Location: cp.Location,
		Context:  observationContext(obs),
	}
	if failures := cp.evaluate(obs); len(failures) > 0 {
		rec.Outcome = assert.Failed
		rec.Message = strings.Join(failures, "; ")
	}
	ctx.Recorder.Record(rec)
	return nil
}

func observationContext(obs *Observation) map[string]any {
	out := make(map[string]any, len(obs.Fields)+1)
	for k, v := range obs.Fields {
		if b, ok := v.([]byte); ok {
			v = hexdump(b)
		}
		out[k] = v
	}
	out["status"] = obs.Status.String()
	return out
}

// restoreAll restores in reverse capture order. Every failure becomes one
// warning and the next snapshot is still restored.
func restoreAll(ctx *Context, tc *TestCase, snaps []*snapshot.Snapshot, log *slog.Logger) {
	for _, s := range slices.Backward(snaps) {
		err := ctx.Snapshots.Restore(s)
		if err == nil {
			log.Debug("restored state", "var", s.Var.Name)
			continue
		}
		var pf *snapshot.PartialFailure
		if !errors.As(err, &pf) {
			pf = &snapshot.PartialFailure{Var: s.Var, Err: err}
		}
		ctx.Recorder.Record(assert.Record{
			ID:      tc.RestoreID,
			Outcome: assert.Warning,
			Title:   fmt.Sprintf("%s: restore %s", tc.Name, pf.Var.Name),
			Message: pf.Error(),
			Context: map[string]any{
				"variable": pf.Var.String(),
			},
		})
	}
}

// RunAll runs test cases in order until the context is cancelled. Setup
// errors do not stop the remaining test cases.
func RunAll(ctx *Context, cases []*TestCase) ([]*Result, error) {
	var results []*Result
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "run interrupted")
		}
		res, _ := Run(ctx, tc)
		results = append(results, res)
	}
	return results, nil
}
