package attributes

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/foxboron/go-uefi-sct/efi/util"
)

// Section 8.2 Variable Services
type Attributes uint32

var SizeofAttributes = 4

const (
	EFI_VARIABLE_NON_VOLATILE                          Attributes = 0x00000001
	EFI_VARIABLE_BOOTSERVICE_ACCESS                    Attributes = 0x00000002
	EFI_VARIABLE_RUNTIME_ACCESS                        Attributes = 0x00000004
	EFI_VARIABLE_HARDWARE_ERROR_RECORD                 Attributes = 0x00000008
	EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS            Attributes = 0x00000010 // Deprecated, we only reserve it
	EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS Attributes = 0x00000020
	EFI_VARIABLE_APPEND_WRITE                          Attributes = 0x00000040
	EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS         Attributes = 0x00000080 // Uses the EFI_VARIABLE_AUTHENTICATION_3 struct
)

// NV -> Non-Volatile
// BS -> Boot Services
// RT -> Runtime Services
// AT -> Time Based Authenticated Write Access

// AuthenticatedVariable is NV|BS|RT|AT, the attributes of the secure boot
// key databases.
const AuthenticatedVariable = EFI_VARIABLE_NON_VOLATILE |
	EFI_VARIABLE_BOOTSERVICE_ACCESS |
	EFI_VARIABLE_RUNTIME_ACCESS |
	EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS

var EFI_GLOBAL_VARIABLE = util.EFIGUID{Data1: 0x8BE4DF61, Data2: 0x93CA, Data3: 0x11d2, Data4: [8]uint8{0xAA, 0x0D, 0x00, 0xE0, 0x98, 0x03, 0x2B, 0x8C}}

// Section 32.6 - Code Definition
// Section 32.6.1 - UEFI Variable GUID & Variable Name
// page 1728

// Valid Databases
// db  - authorized signature database
// dbx - forbidden signature database
// dbt - authorized timestamp signature database
// dbr - authorized recovery signature database
var (
	EFI_IMAGE_SECURITY_DATABASE_GUID = util.EFIGUID{Data1: 0xd719b2cb, Data2: 0x3d3a, Data3: 0x4596, Data4: [8]uint8{0xa3, 0xbc, 0xda, 0xd0, 0x0e, 0x67, 0x65, 0x6f}}
	IMAGE_SECURITY_DATABASE          = "db"
	IMAGE_SECURITY_DATABASE1         = "dbx"
	IMAGE_SECURITY_DATABASE2         = "dbt"
	IMAGE_SECURITY_DATABASE3         = "dbr"
	ImageSecurityDatabases           = map[string]bool{
		IMAGE_SECURITY_DATABASE:  true,
		IMAGE_SECURITY_DATABASE1: true,
		IMAGE_SECURITY_DATABASE2: true,
		IMAGE_SECURITY_DATABASE3: true,
	}
)

var (
	Efivars = "/sys/firmware/efi/efivars"
)

// GuidFor returns the vendor GUID of a well known variable name.
func GuidFor(name string) util.EFIGUID {
	if ImageSecurityDatabases[name] {
		return EFI_IMAGE_SECURITY_DATABASE_GUID
	}
	return EFI_GLOBAL_VARIABLE
}

// Bytes returns the little-endian attribute prefix used by efivarfs.
func (a Attributes) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, a)
	return buf.Bytes()
}

// Persistent masks off the write mode bits that are not stored with the
// variable.
func (a Attributes) Persistent() Attributes {
	return a &^ EFI_VARIABLE_APPEND_WRITE
}

func (a Attributes) Has(b Attributes) bool {
	return a&b == b
}

func (a Attributes) String() string {
	names := []struct {
		a Attributes
		n string
	}{
		{EFI_VARIABLE_NON_VOLATILE, "NV"},
		{EFI_VARIABLE_BOOTSERVICE_ACCESS, "BS"},
		{EFI_VARIABLE_RUNTIME_ACCESS, "RT"},
		{EFI_VARIABLE_HARDWARE_ERROR_RECORD, "HR"},
		{EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS, "AW"},
		{EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS, "AT"},
		{EFI_VARIABLE_APPEND_WRITE, "AP"},
		{EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS, "EA"},
	}
	var s []string
	for _, n := range names {
		if a&n.a != 0 {
			s = append(s, n.n)
		}
	}
	if len(s) == 0 {
		return "0"
	}
	return strings.Join(s, "|")
}
