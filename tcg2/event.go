package tcg2

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/canonical/tcglog-parser"
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/tcg2/peimage"
)

const (
	// EventHeaderSize is sizeof(EFI_TCG2_EVENT_HEADER).
	EventHeaderSize    = 14
	EventHeaderVersion = 1
	// MinEventSize is the smallest Size accepted, an event without data.
	MinEventSize = 4 + EventHeaderSize
	MaxPCRIndex  = 23
)

// Flags for HashLogExtendEvent.
const (
	ExtendOnly  uint64 = 0x0000000000000001
	PECOFFImage uint64 = 0x0000000000000010
)

type EventHeader struct {
	HeaderSize    uint32
	HeaderVersion uint16
	PCRIndex      uint32
	EventType     tcglog.EventType
}

// Event is EFI_TCG2_EVENT. Size is taken as given so malformed events can
// be expressed.
type Event struct {
	Size   uint32
	Header EventHeader
	Data   []byte
}

// NewEvent returns a well formed event.
func NewEvent(pcr uint32, typ tcglog.EventType, data []byte) *Event {
	return &Event{
		Size: uint32(MinEventSize + len(data)),
		Header: EventHeader{
			HeaderSize:    EventHeaderSize,
			HeaderVersion: EventHeaderVersion,
			PCRIndex:      pcr,
			EventType:     typ,
		},
		Data: data,
	}
}

func (e *Event) Bytes() []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, e.Size)
	binary.Write(&b, binary.LittleEndian, e.Header)
	b.Write(e.Data)
	return b.Bytes()
}

// ReadEvent decodes an event, trusting Size for the length of the data.
func ReadEvent(r io.Reader) (*Event, error) {
	var e Event
	if err := binary.Read(r, binary.LittleEndian, &e.Size); err != nil {
		return nil, errors.Wrap(err, "reading event size")
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Header); err != nil {
		return nil, errors.Wrap(err, "reading event header")
	}
	if e.Size < MinEventSize {
		return nil, errors.Errorf("event size %d is below %d", e.Size, MinEventSize)
	}
	e.Data = make([]byte, e.Size-MinEventSize)
	if _, err := io.ReadFull(r, e.Data); err != nil {
		return nil, errors.Wrap(err, "reading event data")
	}
	return &e, nil
}

// ValidateEvent applies the parameter checks of HashLogExtendEvent. Every
// device implementation shares it.
func ValidateEvent(flags uint64, data []byte, event *Event) error {
	switch {
	case event == nil:
		return status.INVALID_PARAMETER
	case event.Size < MinEventSize:
		return status.INVALID_PARAMETER
	case event.Header.HeaderSize != EventHeaderSize:
		return status.INVALID_PARAMETER
	case event.Header.HeaderVersion != EventHeaderVersion:
		return status.INVALID_PARAMETER
	case event.Header.PCRIndex > MaxPCRIndex:
		return status.INVALID_PARAMETER
	}
	if flags&PECOFFImage != 0 {
		if _, err := peimage.Parse(bytes.NewReader(data)); err != nil {
			return status.UNSUPPORTED
		}
	}
	return nil
}

// MeasuredBytes returns what HashLogExtendEvent hashes: the image hash input
// for PE/COFF images, the buffer otherwise.
func MeasuredBytes(flags uint64, data []byte) ([]byte, error) {
	if flags&PECOFFImage == 0 {
		return data, nil
	}
	img, err := peimage.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, status.UNSUPPORTED
	}
	return img.HashContent(), nil
}
