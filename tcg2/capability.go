// Package tcg2 describes the EFI TCG2 protocol as seen by a conformance
// harness: the packed capability structure, the measured event format and
// the protocol entry points.
package tcg2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/canonical/go-tpm2"
	"github.com/pkg/errors"
)

type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Version11 is the structure and protocol version every implementation must
// report.
var Version11 = Version{1, 1}

// HashAlgorithmBitmap is EFI_TCG2_EVENT_ALGORITHM_BITMAP.
type HashAlgorithmBitmap uint32

const (
	HashSHA1    HashAlgorithmBitmap = 0x00000001
	HashSHA256  HashAlgorithmBitmap = 0x00000002
	HashSHA384  HashAlgorithmBitmap = 0x00000004
	HashSHA512  HashAlgorithmBitmap = 0x00000008
	HashSM3_256 HashAlgorithmBitmap = 0x00000010

	// HashStrong are the banks a conforming platform must offer at least one
	// of.
	HashStrong = HashSHA256 | HashSHA384 | HashSHA512
)

var bitmapAlgorithms = []struct {
	bit HashAlgorithmBitmap
	alg tpm2.HashAlgorithmId
}{
	{HashSHA1, tpm2.HashAlgorithmSHA1},
	{HashSHA256, tpm2.HashAlgorithmSHA256},
	{HashSHA384, tpm2.HashAlgorithmSHA384},
	{HashSHA512, tpm2.HashAlgorithmSHA512},
	{HashSM3_256, tpm2.HashAlgorithmSM3_256},
}

// BitmapFor returns the bit of a TPM hash algorithm, or 0.
func BitmapFor(alg tpm2.HashAlgorithmId) HashAlgorithmBitmap {
	for _, b := range bitmapAlgorithms {
		if b.alg == alg {
			return b.bit
		}
	}
	return 0
}

// Algorithms lists the TPM hash algorithms in the bitmap.
func (b HashAlgorithmBitmap) Algorithms() []tpm2.HashAlgorithmId {
	var out []tpm2.HashAlgorithmId
	for _, e := range bitmapAlgorithms {
		if b&e.bit != 0 {
			out = append(out, e.alg)
		}
	}
	return out
}

func (b HashAlgorithmBitmap) Has(o HashAlgorithmBitmap) bool {
	return b&o == o
}

func (b HashAlgorithmBitmap) String() string {
	var names []string
	for _, e := range bitmapAlgorithms {
		if b&e.bit != 0 {
			names = append(names, fmt.Sprint(e.alg))
		}
	}
	if rest := b &^ (HashSHA1 | HashSHA256 | HashSHA384 | HashSHA512 | HashSM3_256); rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// EventLogBitmap is EFI_TCG2_EVENT_LOG_BITMAP.
type EventLogBitmap uint32

const (
	EventLogTCG12 EventLogBitmap = 0x00000001
	EventLogTCG2  EventLogBitmap = 0x00000002
)

// BootServiceCapability is EFI_TCG2_BOOT_SERVICE_CAPABILITY. The wire layout
// is packed.
type BootServiceCapability struct {
	Size                uint8
	StructureVersion    Version
	ProtocolVersion     Version
	HashAlgorithmBitmap HashAlgorithmBitmap
	SupportedEventLogs  EventLogBitmap
	TPMPresentFlag      uint8
	MaxCommandSize      uint16
	MaxResponseSize     uint16
	ManufacturerID      uint32
	NumberOfPcrBanks    uint32
	ActivePcrBanks      HashAlgorithmBitmap
}

const (
	CapabilitySize = 30
	// PartialCapabilitySize covers Size and both versions.
	PartialCapabilitySize = 5
)

// Field names a capability member by its end offset in the packed layout.
type Field int

const (
	FieldSize                Field = 1
	FieldStructureVersion    Field = 3
	FieldProtocolVersion     Field = 5
	FieldHashAlgorithmBitmap Field = 9
	FieldSupportedEventLogs  Field = 13
	FieldTPMPresentFlag      Field = 14
	FieldMaxCommandSize      Field = 16
	FieldMaxResponseSize     Field = 18
	FieldManufacturerID      Field = 22
	FieldNumberOfPcrBanks    Field = 26
	FieldActivePcrBanks      Field = 30
)

var ErrShortCapability = errors.New("capability buffer is empty")

// Bytes encodes the full packed structure.
func (c *BootServiceCapability) Bytes() []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, c)
	return b.Bytes()
}

// Capability is a structure read back from a device along with the Size the
// caller passed in.
type Capability struct {
	BootServiceCapability
	Requested uint8
}

// Has reports whether f lies inside the requested size. The Size byte the
// device wrote back is not consulted, a device may clobber it.
func (c *Capability) Has(f Field) bool {
	return int(f) <= int(c.Requested)
}

// ParseCapability decodes as many fields as buf holds. Fields past the end of
// buf are zero.
func ParseCapability(buf []byte) (*BootServiceCapability, error) {
	if len(buf) == 0 {
		return nil, ErrShortCapability
	}
	full := make([]byte, CapabilitySize)
	copy(full, buf)
	var c BootServiceCapability
	if err := binary.Read(bytes.NewReader(full), binary.LittleEndian, &c); err != nil {
		return nil, errors.Wrap(err, "decoding capability")
	}
	return &c, nil
}

// FillCapability copies the fields of c that fit the caller's buffer, the way
// firmware honours the Size field.
func FillCapability(c *BootServiceCapability, buf []byte) {
	n := min(int(buf[0]), len(buf), CapabilitySize)
	if n <= 1 {
		return
	}
	copy(buf[1:n], c.Bytes()[1:n])
}
