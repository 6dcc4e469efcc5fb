package driver

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/sct/fixture"
	"github.com/foxboron/go-uefi-sct/sct/snapshot"
)

// SetupError means a test case could not be carried out. It is never an
// assertion outcome.
type SetupError struct {
	TestCase   string
	Checkpoint string
	Status     status.Status
	Err        error
}

func (e *SetupError) Error() string {
	where := e.TestCase
	if e.Checkpoint != "" {
		where += "/" + e.Checkpoint
	}
	return fmt.Sprintf("%s: setup failed with %s: %v", where, e.Status, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Setup wraps err as a setup failure reporting st.
func Setup(st status.Status, err error) *SetupError {
	return &SetupError{Status: st, Err: err}
}

// FixtureError maps a fixture store error to the status the test reports.
func FixtureError(name string, err error) *SetupError {
	st := status.LOAD_ERROR
	switch {
	case errors.Is(err, fixture.ErrNotFound):
		st = status.NOT_FOUND
	case errors.Is(err, fixture.ErrOutOfResources):
		st = status.OUT_OF_RESOURCES
	}
	return &SetupError{Status: st, Err: errors.Wrapf(err, "loading fixture %s", name)}
}

func snapshotError(err error) *SetupError {
	st := status.Of(err)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		st = status.NOT_FOUND
	case errors.Is(err, snapshot.ErrOutOfResources):
		st = status.OUT_OF_RESOURCES
	}
	return &SetupError{Status: st, Err: err}
}

func asSetupError(err error) *SetupError {
	var se *SetupError
	if errors.As(err, &se) {
		return se
	}
	return &SetupError{Status: status.Of(err), Err: err}
}
