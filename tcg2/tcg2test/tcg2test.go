// Package tcg2test provides an in-memory TCG2 protocol with a crypto agile
// event log, used as the reference device for the conformance suite.
package tcg2test

import (
	"bytes"

	efi "github.com/canonical/go-efilib"
	"github.com/canonical/go-tpm2"
	"github.com/canonical/tcglog-parser"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/tcg2"
)

const numPCRs = tcg2.MaxPCRIndex + 1

// Device implements tcg2.Protocol.
type Device struct {
	capability tcg2.BootServiceCapability
	reported   *tcg2.HashAlgorithmBitmap
	pcrs       map[tpm2.HashAlgorithmId]*[numPCRs][]byte
	events     []*tcglog.Event

	acceptNull  bool
	ignoreSize  bool
	noValidate  bool
	noTCG2Log   bool
	wrongDigest bool
}

type Option func(*Device)

// WithBanks selects the supported and active PCR banks. The default is
// SHA1 and SHA256.
func WithBanks(supported, active tcg2.HashAlgorithmBitmap) Option {
	return func(d *Device) {
		d.capability.HashAlgorithmBitmap = supported
		d.capability.ActivePcrBanks = active
	}
}

func WithStructureVersion(v tcg2.Version) Option {
	return func(d *Device) { d.capability.StructureVersion = v }
}

func WithProtocolVersion(v tcg2.Version) Option {
	return func(d *Device) { d.capability.ProtocolVersion = v }
}

// WithoutTCG2Log drops support for the crypto agile log format.
func WithoutTCG2Log() Option {
	return func(d *Device) { d.noTCG2Log = true }
}

// WithNullCapabilityAccepted makes GetCapability succeed on a null pointer.
func WithNullCapabilityAccepted() Option {
	return func(d *Device) { d.acceptNull = true }
}

// WithSizeIgnored makes GetCapability fill the whole structure regardless of
// the caller's size.
func WithSizeIgnored() Option {
	return func(d *Device) { d.ignoreSize = true }
}

// WithoutEventValidation accepts any event in HashLogExtendEvent.
func WithoutEventValidation() Option {
	return func(d *Device) { d.noValidate = true }
}

// WithReportedActiveBanks makes GetActivePcrBanks disagree with the
// capability.
func WithReportedActiveBanks(b tcg2.HashAlgorithmBitmap) Option {
	return func(d *Device) { d.reported = &b }
}

// WithWrongDigests logs digests that do not match the measured data.
func WithWrongDigests() Option {
	return func(d *Device) { d.wrongDigest = true }
}

// New returns a device with SHA1 and SHA256 banks and a log holding the
// secure boot configuration measurements a platform makes before boot.
func New(opts ...Option) *Device {
	d := &Device{
		capability: tcg2.BootServiceCapability{
			Size:                tcg2.CapabilitySize,
			StructureVersion:    tcg2.Version11,
			ProtocolVersion:     tcg2.Version11,
			HashAlgorithmBitmap: tcg2.HashSHA1 | tcg2.HashSHA256,
			SupportedEventLogs:  tcg2.EventLogTCG2,
			TPMPresentFlag:      1,
			MaxCommandSize:      4096,
			MaxResponseSize:     4096,
			// "SIM "
			ManufacturerID: 0x53494d20,
			ActivePcrBanks: tcg2.HashSHA1 | tcg2.HashSHA256,
		},
		pcrs: map[tpm2.HashAlgorithmId]*[numPCRs][]byte{},
	}
	for _, o := range opts {
		o(d)
	}
	if d.noTCG2Log {
		d.capability.SupportedEventLogs &^= tcg2.EventLogTCG2
	}
	d.capability.NumberOfPcrBanks = uint32(len(d.capability.HashAlgorithmBitmap.Algorithms()))
	for _, alg := range d.capability.ActivePcrBanks.Algorithms() {
		var bank [numPCRs][]byte
		for i := range bank {
			bank[i] = make([]byte, alg.Size())
		}
		d.pcrs[alg] = &bank
	}
	d.events = []*tcglog.Event{d.specIDEvent()}
	d.measureSecureBootConfig()
	return d
}

func (d *Device) specIDEvent() *tcglog.Event {
	var sizes []tcglog.EFISpecIdEventAlgorithmSize
	for _, alg := range d.capability.ActivePcrBanks.Algorithms() {
		sizes = append(sizes, tcglog.EFISpecIdEventAlgorithmSize{AlgorithmId: alg, DigestSize: uint16(alg.Size())})
	}
	return &tcglog.Event{
		PCRIndex:  0,
		EventType: tcglog.EventTypeNoAction,
		Digests:   tcglog.DigestMap{tpm2.HashAlgorithmSHA1: make(tpm2.Digest, tpm2.HashAlgorithmSHA1.Size())},
		Data: &tcglog.SpecIdEvent03{
			SpecVersionMajor: 2,
			UintnSize:        2,
			DigestSizes:      sizes,
		},
	}
}

func (d *Device) measureSecureBootConfig() {
	for _, v := range []struct {
		guid efi.GUID
		name string
		data []byte
	}{
		{efi.GlobalVariable, "SecureBoot", []byte{1}},
		{efi.GlobalVariable, "PK", nil},
		{efi.GlobalVariable, "KEK", nil},
		{efi.ImageSecurityDatabaseGuid, "db", nil},
		{efi.ImageSecurityDatabaseGuid, "dbx", nil},
	} {
		data := &tcglog.EFIVariableData{VariableName: v.guid, UnicodeName: v.name, VariableData: v.data}
		var b bytes.Buffer
		data.Write(&b)
		d.extend(7, tcglog.EventTypeEFIVariableDriverConfig, b.Bytes(), data)
	}
	for pcr := tpm2.Handle(0); pcr <= 7; pcr++ {
		data := &tcglog.SeparatorEventData{Value: tcglog.SeparatorEventNormalValue}
		var b bytes.Buffer
		data.Write(&b)
		d.extend(pcr, tcglog.EventTypeSeparator, b.Bytes(), data)
	}
}

// extend measures data into every active bank and logs the event when data
// is non-nil.
func (d *Device) extend(pcr tpm2.Handle, typ tcglog.EventType, measured []byte, data tcglog.EventData) {
	digests := tcglog.DigestMap{}
	for alg, bank := range d.pcrs {
		h := alg.NewHash()
		h.Write(measured)
		if d.wrongDigest && pcr > 7 {
			h.Write([]byte{0})
		}
		digest := h.Sum(nil)
		digests[alg] = digest

		h = alg.NewHash()
		h.Write(bank[pcr])
		h.Write(digest)
		bank[pcr] = h.Sum(nil)
	}
	if data != nil {
		d.events = append(d.events, &tcglog.Event{
			PCRIndex:  pcr,
			EventType: typ,
			Digests:   digests,
			Data:      data,
		})
	}
}

// PCR returns the current value of a PCR.
func (d *Device) PCR(alg tpm2.HashAlgorithmId, index int) []byte {
	bank, ok := d.pcrs[alg]
	if !ok || index < 0 || index >= numPCRs {
		return nil
	}
	return bytes.Clone(bank[index])
}

// Events returns the logged events, starting with the Spec ID event.
func (d *Device) Events() []*tcglog.Event {
	return d.events
}

func (d *Device) GetCapability(capability []byte) error {
	if len(capability) == 0 {
		if d.acceptNull {
			return nil
		}
		return status.INVALID_PARAMETER
	}
	if d.ignoreSize {
		n := copy(capability, d.capability.Bytes())
		capability[0] = uint8(n)
		return nil
	}
	tcg2.FillCapability(&d.capability, capability)
	return nil
}

func (d *Device) GetActivePcrBanks(banks *tcg2.HashAlgorithmBitmap) error {
	if banks == nil {
		return status.INVALID_PARAMETER
	}
	*banks = d.capability.ActivePcrBanks
	if d.reported != nil {
		*banks = *d.reported
	}
	return nil
}

func (d *Device) HashLogExtendEvent(flags uint64, data []byte, event *tcg2.Event) error {
	if !d.noValidate {
		if err := tcg2.ValidateEvent(flags, data, event); err != nil {
			return err
		}
	}
	if event == nil {
		return nil
	}
	measured, err := tcg2.MeasuredBytes(flags, data)
	if err != nil {
		return err
	}
	pcr := tpm2.Handle(event.Header.PCRIndex % numPCRs)
	var logged tcglog.EventData
	if flags&tcg2.ExtendOnly == 0 {
		logged = tcglog.OpaqueEventData(bytes.Clone(event.Data))
	}
	d.extend(pcr, event.Header.EventType, measured, logged)
	return nil
}

func (d *Device) GetEventLog(format tcg2.EventLogFormat) (*tcg2.EventLog, error) {
	if format != tcg2.EventLogFormatTCG2 || d.noTCG2Log {
		return nil, status.INVALID_PARAMETER
	}
	var b bytes.Buffer
	if err := tcglog.NewLogForTesting(d.events).Write(&b); err != nil {
		return nil, status.DEVICE_ERROR
	}
	last := -1
	if len(d.events) > 1 {
		var head bytes.Buffer
		if err := tcglog.NewLogForTesting(d.events[:len(d.events)-1]).Write(&head); err != nil {
			return nil, status.DEVICE_ERROR
		}
		last = head.Len()
	}
	return &tcg2.EventLog{Data: b.Bytes(), LastEntry: last}, nil
}

var _ tcg2.Protocol = (*Device)(nil)
