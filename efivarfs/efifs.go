package efivarfs

import (
	"bytes"
	"errors"
	"os"

	"github.com/foxboron/go-uefi-sct/efi/attr"
	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/foxboron/go-uefi-sct/efivar"
)

// This package deals with the interface actually writing the variables properly
// to the efivarfs backend.

var (
	ErrImmutable           = attr.ErrIsImmutable
	ErrIncorrectAttributes = errors.New("efivar has the wrong attributes")
)

// EFIVars is the interface for interacting with writing and getting EFI variables.
type EFIVars interface {
	GetVar(efivar.Efivar, efivar.Unmarshallable) error
	GetVarWithAttributes(efivar.Efivar, efivar.Unmarshallable) (attributes.Attributes, error)
	WriteVar(efivar.Efivar, efivar.Marshallable) error
}

// VariableService is the runtime GetVariable/SetVariable pair. Errors are
// status.Status values so callers can compare them against the codes the
// firmware is required to return.
type VariableService interface {
	GetVariable(name string, guid util.EFIGUID) (attributes.Attributes, []byte, error)
	SetVariable(name string, guid util.EFIGUID, attrs attributes.Attributes, data []byte) error
}

// WriteChecker is implemented by variable services that can refuse a write on
// their own, before the firmware sees it.
type WriteChecker interface {
	CheckWritable(name string, guid util.EFIGUID) error
}

// EFIFS is a struct that combines reading variables from the file system while also ensuring we are
// handling the immutable bit correctly.
type EFIFS struct {
	*FSWrapper
}

var (
	_ EFIVars         = &EFIFS{}
	_ VariableService = &EFIFS{}
	_ WriteChecker    = &EFIFS{}
)

// NewFS creates a new instance of *EFIFS
func NewFS() *EFIFS {
	return &EFIFS{NewFSWrapper()}
}

// Open returns a initialization Efivarfs for high-level abstractions.
func (f *EFIFS) Open() *Efivarfs {
	return &Efivarfs{f}
}

// Check if file is immutable before writing to the file.
// Returns ErrImmutable if the file is immutable.
func (f *EFIFS) CheckImmutable() *EFIFS {
	f.FSWrapper.CheckImmutable()
	return f
}

// UnsetImmutable implicitly when writing towards a file.
func (f *EFIFS) UnsetImmutable() *EFIFS {
	f.FSWrapper.UnsetImmutable()
	return f
}

// GetVar parses and unmarshalls a EFI variable.
func (t *EFIFS) GetVar(v efivar.Efivar, e efivar.Unmarshallable) error {
	if _, err := t.GetVarWithAttributes(v, e); err != nil {
		return err
	}
	return nil
}

// GetVarWithAttributes parses and unmarshalls a EFI variable, while also
// returning the parsed attributes.
func (t *EFIFS) GetVarWithAttributes(v efivar.Efivar, e efivar.Unmarshallable) (attributes.Attributes, error) {
	attrs, buf, err := t.ReadEfivarsWithGuid(v.Name, v.GUID)
	if err != nil {
		return 0, err
	}
	if !attrs.Has(v.Attributes) {
		return attrs, ErrIncorrectAttributes
	}
	if err := e.Unmarshal(buf); err != nil {
		return 0, err
	}
	return attrs, nil
}

// WriteVar writes an EFI variables to the EFIFS.
func (t *EFIFS) WriteVar(v efivar.Efivar, e efivar.Marshallable) error {
	var b bytes.Buffer
	e.Marshal(&b)
	return t.WriteEfivarsWithGuid(v.Name, v.Attributes, b.Bytes(), v.GUID)
}

// GetVariable returns the attributes and the value of a variable.
func (t *EFIFS) GetVariable(name string, guid util.EFIGUID) (attributes.Attributes, []byte, error) {
	attrs, buf, err := t.ReadEfivarsWithGuid(name, guid)
	if err != nil {
		return 0, nil, ToStatus(err)
	}
	return attrs, buf.Bytes(), nil
}

// SetVariable writes the variable. An empty non-append write deletes it.
func (t *EFIFS) SetVariable(name string, guid util.EFIGUID, attrs attributes.Attributes, data []byte) error {
	if len(data) == 0 && attrs&attributes.EFI_VARIABLE_APPEND_WRITE == 0 {
		return ToStatus(t.RemoveEfivarsWithGuid(name, guid))
	}
	return ToStatus(t.WriteEfivarsWithGuid(name, attrs, data, guid))
}

// CheckWritable returns ErrImmutable when efivarfs would refuse to write the
// variable. The flag is cleared instead when UnsetImmutable was requested.
func (t *EFIFS) CheckWritable(name string, guid util.EFIGUID) error {
	return t.isimmutable(efivarPath(name, guid))
}

// ToStatus converts filesystem errors into the status the firmware
// reported through efivarfs.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrImmutable):
		return status.WRITE_PROTECTED
	case errors.Is(err, os.ErrNotExist):
		return status.NOT_FOUND
	}
	return status.Of(err)
}
