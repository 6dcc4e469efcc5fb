package efivarfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/foxboron/go-uefi-sct/efi/attr"
	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/spf13/afero"
)

// This is the lowest layer of the filesystem abstraction. It maps efivarfs
// semantics onto afero so tests can run against an in-memory filesystem.

var (
	errImmutable = attr.ErrIsImmutable

	isImmutable    = attr.IsImmutable
	unsetImmutable = attr.UnsetImmutable
)

type FSWrapper struct {
	unsetimmutable bool
	immutable      bool
	// onDisk is set when fs carries inode flags.
	onDisk bool
	fs     afero.Fs
}

func (e *FSWrapper) CheckImmutable() {
	e.immutable = true
}

func (e *FSWrapper) UnsetImmutable() {
	e.unsetimmutable = true
}

func NewMemoryWrapper() *FSWrapper {
	return &FSWrapper{fs: afero.NewMemMapFs()}
}

func NewFSWrapper() *FSWrapper {
	return &FSWrapper{fs: afero.NewOsFs(), onDisk: true}
}

// SetFS swaps the backing filesystem.
func (t *FSWrapper) SetFS(fs afero.Fs) {
	_, t.onDisk = fs.(*afero.OsFs)
	t.fs = fs
}

func (t *FSWrapper) Fs() afero.Fs {
	return t.fs
}

func efivarPath(name string, guid util.EFIGUID) string {
	return path.Join(attributes.Efivars, fmt.Sprintf("%s-%s", name, guid.Format()))
}

// The immutable flag only exists on a real efivarfs mount.
func (t *FSWrapper) isimmutable(efivar string) error {
	if !t.immutable {
		return nil
	}
	if !t.onDisk {
		return nil
	}
	err := isImmutable(efivar)
	switch {
	case errors.Is(err, attr.ErrIsImmutable):
		if !t.unsetimmutable {
			return errImmutable
		}
		if err := unsetImmutable(efivar); err != nil {
			return fmt.Errorf("couldn't unset immutable bit: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	}
	return nil
}

func (t *FSWrapper) ParseEfivars(f io.Reader, size int) (attributes.Attributes, *bytes.Buffer, error) {
	if size < attributes.SizeofAttributes {
		return 0, nil, fmt.Errorf("efivar is %d bytes, too short for the attributes", size)
	}
	var attrs attributes.Attributes
	if err := binary.Read(f, binary.LittleEndian, &attrs); err != nil {
		return 0, nil, fmt.Errorf("could not read file: %w", err)
	}
	buf := make([]byte, size-attributes.SizeofAttributes)
	if _, err := io.ReadFull(f, buf); err != nil {
		return 0, nil, err
	}
	return attrs, bytes.NewBuffer(buf), nil
}

// For a full path instead of the inferred efivars path
func (t *FSWrapper) ReadEfivarsFile(filename string) (attributes.Attributes, *bytes.Buffer, error) {
	f, err := t.fs.Open(filename)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, nil, fmt.Errorf("could not stat file descriptor: %w", err)
	}
	return t.ParseEfivars(f, int(stat.Size()))
}

func (t *FSWrapper) ReadEfivarsWithGuid(filename string, guid util.EFIGUID) (attributes.Attributes, *bytes.Buffer, error) {
	return t.ReadEfivarsFile(efivarPath(filename, guid))
}

// Write an EFI variable to sysfs. efivarfs expects the attributes and the
// data in a single write.
func (t *FSWrapper) WriteEfivarsWithGuid(name string, attrs attributes.Attributes, b []byte, guid util.EFIGUID) error {
	efivar := efivarPath(name, guid)
	if err := t.isimmutable(efivar); err != nil {
		return err
	}
	if err := t.fs.MkdirAll(attributes.Efivars, 0755); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE
	_, native := t.fs.(*afero.OsFs)
	switch {
	case attrs&attributes.EFI_VARIABLE_APPEND_WRITE != 0 && native:
		flags |= os.O_APPEND
	case attrs&attributes.EFI_VARIABLE_APPEND_WRITE != 0:
		// Regular files need the firmware append emulated.
		_, old, err := t.ReadEfivarsFile(efivar)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return err
		default:
			b = append(old.Bytes(), b...)
		}
		attrs = attrs.Persistent()
		flags |= os.O_TRUNC
	case !native:
		// efivarfs replaces the value on write, regular files need truncating.
		flags |= os.O_TRUNC
	}
	f, err := t.fs.OpenFile(efivar, flags, 0644)
	if err != nil {
		return fmt.Errorf("couldn't open file: %w", err)
	}
	defer f.Close()
	buf := append(attrs.Bytes(), b...)
	if n, err := f.Write(buf); err != nil {
		return fmt.Errorf("couldn't write efi variable: %w", err)
	} else if n != len(buf) {
		return errors.New("could not write the entire buffer")
	}
	return nil
}

// RemoveEfivarsWithGuid deletes the variable.
func (t *FSWrapper) RemoveEfivarsWithGuid(name string, guid util.EFIGUID) error {
	efivar := efivarPath(name, guid)
	if err := t.isimmutable(efivar); err != nil {
		return err
	}
	return t.fs.Remove(efivar)
}
