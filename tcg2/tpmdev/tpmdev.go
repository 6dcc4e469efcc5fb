//go:build linux

// Package tpmdev exposes the host TPM and the firmware event log through the
// TCG2 protocol interface, so the conformance suite can be pointed at a
// running system.
package tpmdev

import (
	"bytes"
	"os"

	"github.com/canonical/go-tpm2"
	"github.com/canonical/go-tpm2/linux"
	"github.com/canonical/tcglog-parser"
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/tcg2"
)

var (
	linuxDefaultTPM2Device = linux.DefaultTPM2Device
	openTPMDevice          = func(dev tpm2.TPMDevice) (*tpm2.TPMContext, error) { return tpm2.OpenTPMDevice(dev) }
	eventLogPath           = "/sys/kernel/security/tpm0/binary_bios_measurements"
)

// Device implements tcg2.Protocol on top of a TPM connection and the kernel
// copy of the firmware event log. Measurements are extended into the TPM and
// appended to the in-memory log.
type Device struct {
	tpm        *tpm2.TPMContext
	log        *tcglog.Log
	capability tcg2.BootServiceCapability
}

// Open connects to the default TPM2 device and reads the event log.
func Open() (*Device, error) {
	raw, err := linuxDefaultTPM2Device()
	if err != nil {
		return nil, errors.Wrap(err, "no TPM2 device")
	}
	tpm, err := openTPMDevice(raw)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open TPM2 device")
	}
	f, err := os.Open(eventLogPath)
	if err != nil {
		tpm.Close()
		return nil, errors.Wrap(err, "cannot open event log")
	}
	defer f.Close()
	log, err := tcglog.ReadLog(f, &tcglog.LogOptions{})
	if err != nil {
		tpm.Close()
		return nil, errors.Wrap(err, "cannot read event log")
	}
	d, err := New(tpm, log)
	if err != nil {
		tpm.Close()
		return nil, err
	}
	return d, nil
}

// New builds the device from an open TPM and a parsed log.
func New(tpm *tpm2.TPMContext, log *tcglog.Log) (*Device, error) {
	d := &Device{tpm: tpm, log: log}
	if err := d.readCapability(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) readCapability() error {
	pcrs, err := d.tpm.GetCapabilityPCRs()
	if err != nil {
		return errors.Wrap(err, "cannot read PCR banks")
	}
	c := tcg2.BootServiceCapability{
		Size:             tcg2.CapabilitySize,
		StructureVersion: tcg2.Version11,
		ProtocolVersion:  tcg2.Version11,
		TPMPresentFlag:   1,
	}
	for _, sel := range pcrs {
		bit := tcg2.BitmapFor(sel.Hash)
		if bit == 0 {
			continue
		}
		c.HashAlgorithmBitmap |= bit
		c.NumberOfPcrBanks++
		if len(sel.Select) > 0 {
			c.ActivePcrBanks |= bit
		}
	}
	if d.log.Spec.IsEFI_2() {
		c.SupportedEventLogs |= tcg2.EventLogTCG2
	}
	for _, p := range []struct {
		prop tpm2.Property
		set  func(uint32)
	}{
		{tpm2.PropertyMaxCommandSize, func(v uint32) { c.MaxCommandSize = uint16(v) }},
		{tpm2.PropertyMaxResponseSize, func(v uint32) { c.MaxResponseSize = uint16(v) }},
		{tpm2.PropertyManufacturer, func(v uint32) { c.ManufacturerID = v }},
	} {
		v, err := d.tpm.GetCapabilityTPMProperty(p.prop)
		if err != nil {
			return errors.Wrapf(err, "cannot read TPM property %v", p.prop)
		}
		p.set(v)
	}
	d.capability = c
	return nil
}

func (d *Device) Close() error {
	return d.tpm.Close()
}

func (d *Device) GetCapability(capability []byte) error {
	if err := tcg2.CheckCapabilityArgs(capability); err != nil {
		return err
	}
	tcg2.FillCapability(&d.capability, capability)
	return nil
}

func (d *Device) GetActivePcrBanks(banks *tcg2.HashAlgorithmBitmap) error {
	if banks == nil {
		return status.INVALID_PARAMETER
	}
	*banks = d.capability.ActivePcrBanks
	return nil
}

func (d *Device) HashLogExtendEvent(flags uint64, data []byte, event *tcg2.Event) error {
	if err := tcg2.ValidateEvent(flags, data, event); err != nil {
		return err
	}
	measured, err := tcg2.MeasuredBytes(flags, data)
	if err != nil {
		return err
	}
	var digests tpm2.TaggedHashList
	logged := tcglog.DigestMap{}
	for _, alg := range d.capability.ActivePcrBanks.Algorithms() {
		if !alg.Available() {
			continue
		}
		h := alg.NewHash()
		h.Write(measured)
		sum := h.Sum(nil)
		digests = append(digests, tpm2.MakeTaggedHash(alg, sum))
		logged[alg] = sum
	}
	pcr := int(event.Header.PCRIndex)
	if err := d.tpm.PCRExtend(d.tpm.PCRHandleContext(pcr), digests, nil); err != nil {
		return status.DEVICE_ERROR
	}
	if flags&tcg2.ExtendOnly == 0 {
		d.log.Events = append(d.log.Events, &tcglog.Event{
			PCRIndex:  tpm2.Handle(pcr),
			EventType: event.Header.EventType,
			Digests:   logged,
			Data:      tcglog.OpaqueEventData(bytes.Clone(event.Data)),
		})
	}
	return nil
}

func (d *Device) GetEventLog(format tcg2.EventLogFormat) (*tcg2.EventLog, error) {
	if format != tcg2.EventLogFormatTCG2 || d.capability.SupportedEventLogs&tcg2.EventLogTCG2 == 0 {
		return nil, status.INVALID_PARAMETER
	}
	var b bytes.Buffer
	if err := d.log.Write(&b); err != nil {
		return nil, status.DEVICE_ERROR
	}
	last := -1
	if n := len(d.log.Events); n > 1 {
		head := *d.log
		head.Events = d.log.Events[:n-1]
		var hb bytes.Buffer
		if err := head.Write(&hb); err != nil {
			return nil, status.DEVICE_ERROR
		}
		last = hb.Len()
	}
	return &tcg2.EventLog{Data: b.Bytes(), LastEntry: last}, nil
}

var _ tcg2.Protocol = (*Device)(nil)
