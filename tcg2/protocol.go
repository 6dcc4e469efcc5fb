package tcg2

import (
	"bytes"

	"github.com/canonical/tcglog-parser"
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/status"
)

// EventLogFormat is EFI_TCG2_EVENT_LOG_FORMAT.
type EventLogFormat uint32

const (
	EventLogFormatTCG12 EventLogFormat = 0x00000001
	EventLogFormatTCG2  EventLogFormat = 0x00000002
)

// EventLog is the result of GetEventLog.
type EventLog struct {
	Data []byte
	// LastEntry is the offset of the last event in Data, or -1 for an empty
	// log.
	LastEntry int
	Truncated bool
}

// Parse decodes a TCG_2 log.
func (l *EventLog) Parse() (*tcglog.Log, error) {
	log, err := tcglog.ReadLog(bytes.NewReader(l.Data), &tcglog.LogOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "parsing event log")
	}
	return log, nil
}

// Protocol is EFI_TCG2_PROTOCOL. Arguments mirror the firmware interface so
// invalid input can be expressed: a nil slice or pointer is a null pointer.
// Errors are status.Status values.
type Protocol interface {
	// GetCapability fills at most capability[0] bytes of the packed
	// EFI_TCG2_BOOT_SERVICE_CAPABILITY.
	GetCapability(capability []byte) error
	GetActivePcrBanks(banks *HashAlgorithmBitmap) error
	HashLogExtendEvent(flags uint64, data []byte, event *Event) error
	GetEventLog(format EventLogFormat) (*EventLog, error)
}

// ReadCapability calls GetCapability with a buffer of the given size.
func ReadCapability(p Protocol, size uint8) (*Capability, error) {
	buf := make([]byte, max(int(size), 1))
	buf[0] = size
	if err := p.GetCapability(buf); err != nil {
		return nil, err
	}
	c, err := ParseCapability(buf)
	if err != nil {
		return nil, err
	}
	return &Capability{BootServiceCapability: *c, Requested: size}, nil
}

func ActivePcrBanks(p Protocol) (HashAlgorithmBitmap, error) {
	var banks HashAlgorithmBitmap
	if err := p.GetActivePcrBanks(&banks); err != nil {
		return 0, err
	}
	return banks, nil
}

// CheckCapabilityArgs validates a GetCapability buffer.
func CheckCapabilityArgs(capability []byte) error {
	if len(capability) == 0 {
		return status.INVALID_PARAMETER
	}
	return nil
}
