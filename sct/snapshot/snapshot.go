// Package snapshot captures firmware variables before a destructive test
// and puts them back afterwards.
package snapshot

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/efivarfs"
)

var (
	ErrNotFound       = errors.New("state not found")
	ErrOutOfResources = errors.New("state exceeds the snapshot size limit")
	ErrConsumed       = errors.New("snapshot already restored")
	ErrMismatch       = errors.New("state differs from snapshot after restore")
)

const DefaultMaxSize = 1 << 20

// Item names a variable to capture. Optional items may be absent, restoring
// them deletes the variable again.
type Item struct {
	Var      efivar.Efivar
	Optional bool
}

type Snapshot struct {
	Var        efivar.Efivar
	Existed    bool
	Attributes attributes.Attributes
	Value      []byte
	consumed   bool
}

// Equal compares the captured state, ignoring write mode bits.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.Var != o.Var || s.Existed != o.Existed {
		return false
	}
	if !s.Existed {
		return true
	}
	return s.Attributes.Persistent() == o.Attributes.Persistent() && bytes.Equal(s.Value, o.Value)
}

// PartialFailure is returned when a variable could not be put back.
type PartialFailure struct {
	Var efivar.Efivar
	Err error
}

func (p *PartialFailure) Error() string {
	return fmt.Sprintf("restoring %s: %v", p.Var.Name, p.Err)
}

func (p *PartialFailure) Unwrap() error {
	return p.Err
}

// Restorer puts the captured state back. Authenticated variables cannot be
// written back raw and need a strategy that replays signed updates.
type Restorer func(vars efivarfs.VariableService, s *Snapshot) error

type Manager struct {
	vars      efivarfs.VariableService
	maxSize   int
	restorers map[efivar.Efivar]Restorer
	logger    *slog.Logger
}

func NewManager(vars efivarfs.VariableService, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		vars:      vars,
		maxSize:   DefaultMaxSize,
		restorers: map[efivar.Efivar]Restorer{},
		logger:    logger,
	}
}

func (m *Manager) SetMaxSize(n int) {
	m.maxSize = n
}

// SetRestorer registers the restore strategy for v. A nil restorer selects
// the raw write back.
func (m *Manager) SetRestorer(v efivar.Efivar, r Restorer) {
	if r == nil {
		delete(m.restorers, v)
		return
	}
	m.restorers[v] = r
}

func (m *Manager) capture(v efivar.Efivar) (*Snapshot, error) {
	attrs, data, err := m.vars.GetVariable(v.Name, v.GUID)
	switch {
	case errors.Is(err, status.NOT_FOUND):
		return &Snapshot{Var: v}, nil
	case err != nil:
		return nil, errors.Wrapf(err, "reading %s", v.Name)
	}
	if len(data) > m.maxSize {
		return nil, errors.Wrapf(ErrOutOfResources, "%s is %d bytes", v.Name, len(data))
	}
	return &Snapshot{
		Var:        v,
		Existed:    true,
		Attributes: attrs,
		Value:      append([]byte(nil), data...),
	}, nil
}

// Snapshot captures the current value and attributes of the item.
func (m *Manager) Snapshot(item Item) (*Snapshot, error) {
	s, err := m.capture(item.Var)
	if err != nil {
		return nil, err
	}
	if !s.Existed && !item.Optional {
		return nil, errors.Wrapf(ErrNotFound, "%s", item.Var.Name)
	}
	m.logger.Debug("captured state", "var", item.Var.Name, "existed", s.Existed, "size", len(s.Value))
	return s, nil
}

// Restore runs the restore strategy and verifies the result. It returns nil
// or a *PartialFailure. A snapshot is consumed by the first call.
func (m *Manager) Restore(s *Snapshot) error {
	if s.consumed {
		return ErrConsumed
	}
	s.consumed = true

	restore, ok := m.restorers[s.Var]
	if !ok {
		restore = WriteBack
	}
	restoreErr := restore(m.vars, s)
	if restoreErr != nil {
		m.logger.Debug("restore strategy failed", "var", s.Var.Name, "err", restoreErr)
	}

	cur, err := m.capture(s.Var)
	switch {
	case err != nil:
		return &PartialFailure{Var: s.Var, Err: err}
	case !cur.Equal(s) && restoreErr != nil:
		return &PartialFailure{Var: s.Var, Err: restoreErr}
	case !cur.Equal(s):
		return &PartialFailure{Var: s.Var, Err: ErrMismatch}
	}
	return nil
}

// WriteBack writes the captured value back, or deletes the variable if it
// did not exist.
func WriteBack(vars efivarfs.VariableService, s *Snapshot) error {
	if !s.Existed {
		err := vars.SetVariable(s.Var.Name, s.Var.GUID, s.Var.Attributes, nil)
		if errors.Is(err, status.NOT_FOUND) {
			return nil
		}
		return err
	}
	return vars.SetVariable(s.Var.Name, s.Var.GUID, s.Attributes.Persistent(), s.Value)
}
