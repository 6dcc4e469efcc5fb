package testfs

import (
	"bytes"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing/fstest"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/signature"
	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/spf13/afero"
)

// TestFS is an in-memory efivarfs that enforces the authenticated variable
// rules firmware applies to PK, KEK, db and dbx:
//
//   - With no PK enrolled the platform is in setup mode. Descriptors are
//     optional and never verified.
//   - With a PK enrolled, PK and KEK updates must be signed by the PK, db and
//     dbx updates by the PK or a KEK. Anything else is SECURITY_VIOLATION.
//   - An empty payload deletes the variable, deleting PK re-enters setup mode.
//   - EFI_VARIABLE_APPEND_WRITE merges signature lists.
//
// Timestamps are not checked for monotonicity.
type TestFS struct {
	*efivarfs.EFIFS
	faults map[string]status.Status
}

var _ efivarfs.VariableService = &TestFS{}

func NewTestFS() *TestFS {
	return &TestFS{
		EFIFS:  &efivarfs.EFIFS{FSWrapper: efivarfs.NewMemoryWrapper()},
		faults: map[string]status.Status{},
	}
}

// Copy fstest.MapFS into afero.Fs
func copyMapFS(memfs afero.Fs, files fstest.MapFS) {
	for name, file := range files {
		if file.Mode.IsDir() {
			memfs.MkdirAll(name, file.Mode.Perm())
			continue
		}
		// We ignore the error here as if the directory exists it should be fine.
		memfs.MkdirAll(filepath.Dir(name), 0755)
		f, err := memfs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			continue
		}
		f.Write(file.Data)
		f.Close()
	}
}

// With allows you to compose several overlay files into the in-memory filesystem.
func (f *TestFS) With(files ...fstest.MapFS) *TestFS {
	for _, mapfs := range files {
		copyMapFS(f.Fs(), mapfs)
	}
	return f
}

// Open opens TestFS as Efivarfs
func (f *TestFS) Open() *efivarfs.Efivarfs {
	return &efivarfs.Efivarfs{EFIVars: f}
}

// Fail makes every following SetVariable of name return st.
func (f *TestFS) Fail(name string, st status.Status) *TestFS {
	f.faults[name] = st
	return f
}

func (f *TestFS) ClearFaults() {
	f.faults = map[string]status.Status{}
}

// WriteVar routes typed writes through SetVariable so they are subject to
// the same authentication rules.
func (f *TestFS) WriteVar(v efivar.Efivar, m efivar.Marshallable) error {
	return f.SetVariable(v.Name, v.GUID, v.Attributes, m.Bytes())
}

func (f *TestFS) SetVariable(name string, guid util.EFIGUID, attrs attributes.Attributes, data []byte) error {
	if st, ok := f.faults[name]; ok {
		return st
	}
	v, known := efivar.ByName(name)
	if known && v.GUID != guid {
		known = false
	}
	switch {
	case known && (v == efivar.SecureBoot || v == efivar.SetupMode || v == efivar.SignatureSupport):
		return status.WRITE_PROTECTED
	case known && efivar.IsAuthenticated(v):
		return f.setAuthenticated(v, attrs, data)
	}
	return f.EFIFS.SetVariable(name, guid, attrs, data)
}

// InSetupMode reports whether no PK is enrolled.
func (f *TestFS) InSetupMode() bool {
	_, _, err := f.ReadEfivarsWithGuid(efivar.PK.Name, efivar.PK.GUID)
	return err != nil
}

// Reboot latches SecureBoot to the current mode, the way firmware computes
// it once per boot.
func (f *TestFS) Reboot() error {
	if err := f.writeBool(efivar.SetupMode, f.InSetupMode()); err != nil {
		return err
	}
	return f.writeBool(efivar.SecureBoot, !f.InSetupMode())
}

func (f *TestFS) writeBool(v efivar.Efivar, b bool) error {
	return f.WriteEfivarsWithGuid(v.Name, v.Attributes, efivar.Efibool(b).Bytes(), v.GUID)
}

func (f *TestFS) readdb(v efivar.Efivar) (signature.SignatureDatabase, error) {
	_, buf, err := f.ReadEfivarsWithGuid(v.Name, v.GUID)
	if err != nil {
		return signature.SignatureDatabase{}, nil
	}
	return signature.ReadSignatureDatabase(buf)
}

// trusted returns the certificates allowed to sign an update of v.
func (f *TestFS) trusted(v efivar.Efivar) ([]*x509.Certificate, error) {
	vars := []efivar.Efivar{efivar.PK}
	if v == efivar.Db || v == efivar.Dbx {
		vars = append(vars, efivar.KEK)
	}
	var certs []*x509.Certificate
	for _, k := range vars {
		db, err := f.readdb(k)
		if err != nil {
			return nil, err
		}
		c, err := db.Certificates()
		if err != nil {
			return nil, err
		}
		certs = append(certs, c...)
	}
	return certs, nil
}

func (f *TestFS) setAuthenticated(v efivar.Efivar, attrs attributes.Attributes, data []byte) error {
	if attrs.Persistent() != attributes.AuthenticatedVariable {
		return status.INVALID_PARAMETER
	}
	setup := f.InSetupMode()
	payload := data
	if setup {
		if _, d, err := signature.ReadAuthenticatedPayload(data); err == nil {
			payload = d
		}
	} else {
		trusted, err := f.trusted(v)
		if err != nil {
			return status.SECURITY_VIOLATION
		}
		_, d, err := signature.VerifyEFIVariable(v.Name, v.GUID, attrs, data, trusted)
		if err != nil {
			return status.SECURITY_VIOLATION
		}
		payload = d
	}

	update, err := signature.ReadSignatureDatabase(bytes.NewReader(payload))
	if err != nil {
		return status.INVALID_PARAMETER
	}

	appendWrite := attrs&attributes.EFI_VARIABLE_APPEND_WRITE != 0
	switch {
	case len(payload) == 0 && !appendWrite:
		if err := f.RemoveEfivarsWithGuid(v.Name, v.GUID); err != nil {
			return efivarfs.ToStatus(err)
		}
		if v == efivar.PK {
			return f.writeBool(efivar.SetupMode, true)
		}
		return nil
	case appendWrite:
		current, err := f.readdb(v)
		if err != nil {
			return status.DEVICE_ERROR
		}
		if err := current.Merge(update); err != nil {
			return status.INVALID_PARAMETER
		}
		update = current
	}
	if err := f.WriteEfivarsWithGuid(v.Name, attrs.Persistent(), update.Bytes(), v.GUID); err != nil {
		return efivarfs.ToStatus(err)
	}
	if v == efivar.PK && setup {
		return f.writeBool(efivar.SetupMode, false)
	}
	return nil
}
