package efivar

import (
	"bytes"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/util"
)

type Efivar struct {
	Name       string
	GUID       util.EFIGUID
	Attributes attributes.Attributes
}

func (e Efivar) String() string {
	return e.Name + "-" + e.GUID.Format()
}

var (
	globalVariable = attributes.EFI_GLOBAL_VARIABLE
	imageSecurity  = attributes.EFI_IMAGE_SECURITY_DATABASE_GUID

	readOnly = attributes.EFI_VARIABLE_BOOTSERVICE_ACCESS |
		attributes.EFI_VARIABLE_RUNTIME_ACCESS
	defaults = attributes.EFI_VARIABLE_NON_VOLATILE |
		attributes.EFI_VARIABLE_RUNTIME_ACCESS
)

// Definitions for standard EFI variables
var (
	// Whether the platform firmware is operating in Secure boot
	// mode (1) or not (0). All other values are reserved. Should be
	// treated as read-only.
	SecureBoot = Efivar{"SecureBoot", globalVariable, readOnly}

	// Whether the system should require authentication on
	// SetVariable() requests to Secure Boot policy variables (0) or
	// not (1). Should be treated as read-only.
	// The system is in "Setup Mode" when SetupMode==1,
	// AuditMode==0, and DeployedMode==0.
	SetupMode = Efivar{"SetupMode", globalVariable, readOnly}

	// Array of GUIDs representing the type of signatures supported by the
	// platform firmware.
	SignatureSupport = Efivar{"SignatureSupport", globalVariable, readOnly}

	// The public Platform Key.
	PK = Efivar{"PK", globalVariable, attributes.AuthenticatedVariable}

	// The OEM's default public Platform Key. Should be treated as
	// read-only
	PKDefault = Efivar{"PKDefault", globalVariable, defaults}

	// The Key Exchange Key Signature Database.
	KEK = Efivar{"KEK", globalVariable, attributes.AuthenticatedVariable}

	// The OEM's default Key Exchange Key Signature Database.  Should be treated
	// as read-only.
	KEKDefault = Efivar{"KEKDefault", globalVariable, defaults}

	Db = Efivar{"db", imageSecurity, attributes.AuthenticatedVariable}

	// The OEM's default secure boot signature store. Should be treated as
	// read-only.
	DbDefault = Efivar{"dbDefault", globalVariable, defaults}

	Dbx = Efivar{"dbx", imageSecurity, attributes.AuthenticatedVariable}

	// The OEM's default secure boot blacklist signature store.
	// Should be treated as read-only.
	DbxDefault = Efivar{"dbxDefault", globalVariable, defaults}
)

var known = map[string]Efivar{}

func init() {
	for _, v := range []Efivar{SecureBoot, SetupMode, SignatureSupport, PK, PKDefault, KEK, KEKDefault, Db, DbDefault, Dbx, DbxDefault} {
		known[v.Name] = v
	}
}

// ByName looks up a standard variable.
func ByName(name string) (Efivar, bool) {
	v, ok := known[name]
	return v, ok
}

// IsAuthenticated reports whether writes to v must carry an
// EFI_VARIABLE_AUTHENTICATION_2 descriptor.
func IsAuthenticated(v Efivar) bool {
	switch v {
	case PK, KEK, Db, Dbx:
		return true
	}
	return false
}

// Marshallable is an interface to marshal efi variables
type Marshallable interface {
	Marshal(buf *bytes.Buffer)
	Bytes() []byte
}

// Unmarshallable is an interface to unmarshal efi variables
type Unmarshallable interface {
	Unmarshal(data *bytes.Buffer) error
}

// Some basic UEFI types

type Efibool bool

func (s *Efibool) Unmarshal(b *bytes.Buffer) error {
	n, err := b.ReadByte()
	if err != nil {
		return err
	}
	*s = n == 1
	return nil
}

func (s Efibool) Marshal(b *bytes.Buffer) {
	if s {
		b.WriteByte(1)
		return
	}
	b.WriteByte(0)
}

func (s Efibool) Bytes() []byte {
	var b bytes.Buffer
	s.Marshal(&b)
	return b.Bytes()
}

// Bytes is an opaque variable value.
type Bytes []byte

func (e *Bytes) Unmarshal(b *bytes.Buffer) error {
	*e = append((*e)[:0], b.Bytes()...)
	return nil
}

func (e Bytes) Marshal(b *bytes.Buffer) {
	b.Write(e)
}

func (e Bytes) Bytes() []byte {
	return e
}
