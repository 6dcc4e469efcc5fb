package util

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Appendix A - GUID and Time Formats
// Page 2272

// EFIGUID is the mixed-endian GUID used by the firmware. The first three
// fields are little-endian on the wire, Data4 is a byte array.
type EFIGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]uint8
}

const SizeofEFIGUID = 16

var ErrInvalidGUID = errors.New("invalid guid")

// Pretty print an EFIGUID struct
func (e EFIGUID) Format() string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x", e.Data1, e.Data2, e.Data3, e.Data4[:2], e.Data4[2:])
}

func (e EFIGUID) String() string {
	return e.Format()
}

// Bytes returns the wire representation of the GUID.
func (e EFIGUID) Bytes() []byte {
	b := new(bytes.Buffer)
	WriteGUID(b, &e)
	return b.Bytes()
}

// Compare two EFIGUID structs
func CmpEFIGUID(cmp1 EFIGUID, cmp2 EFIGUID) bool {
	return cmp1 == cmp2
}

// StringToGUID parses the canonical 8-4-4-4-12 text form.
func StringToGUID(s string) (*EFIGUID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 5 || len(parts[0]) != 8 || len(parts[1]) != 4 ||
		len(parts[2]) != 4 || len(parts[3]) != 4 || len(parts[4]) != 12 {
		return nil, errors.Wrapf(ErrInvalidGUID, "%q", s)
	}
	decoded, err := hex.DecodeString(strings.Join(parts, ""))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidGUID, "%q: %v", s, err)
	}
	var g EFIGUID
	g.Data1 = binary.BigEndian.Uint32(decoded[0:4])
	g.Data2 = binary.BigEndian.Uint16(decoded[4:6])
	g.Data3 = binary.BigEndian.Uint16(decoded[6:8])
	copy(g.Data4[:], decoded[8:])
	return &g, nil
}

// MustGUID is StringToGUID for package level tables.
func MustGUID(s string) EFIGUID {
	g, err := StringToGUID(s)
	if err != nil {
		panic(err)
	}
	return *g
}

// Convert a wire encoded byte slice to an EFIGUID
func BytesToGUID(s []byte) (*EFIGUID, error) {
	if len(s) < 16 {
		return nil, errors.Wrapf(ErrInvalidGUID, "need 16 bytes, got %d", len(s))
	}
	var efi EFIGUID
	if err := binary.Read(bytes.NewReader(s[:16]), binary.LittleEndian, &efi); err != nil {
		return nil, err
	}
	return &efi, nil
}

// Convert an EFIGUID to a byte slice
func GUIDToBytes(g *EFIGUID) []byte {
	return g.Bytes()
}

// Write an EFIGUID to a bytes.Buffer
func WriteGUID(b *bytes.Buffer, g *EFIGUID) {
	// Writes to a bytes.Buffer do not fail.
	_ = binary.Write(b, binary.LittleEndian, g)
}
