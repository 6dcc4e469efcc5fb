// Package tcg2conf holds the conformance test cases for EFI_TCG2_PROTOCOL.
package tcg2conf

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/canonical/tcglog-parser"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/tcg2"
)

// TestPCR is a debug PCR, extending it does not disturb the boot measurements.
const TestPCR = 16

func requireProtocol(ctx *driver.Context) error {
	if ctx.TCG2 == nil {
		return driver.Setup(status.NOT_FOUND, errors.New("no TCG2 protocol instance"))
	}
	return nil
}

// TestCases returns the TCG2 conformance test cases.
func TestCases() []*driver.TestCase {
	return []*driver.TestCase{
		GetCapability(),
		GetActivePcrBanks(),
		HashLogExtendEvent(),
		GetEventLog(),
	}
}

func observeCapability(size uint8) func(*driver.Context) (*driver.Observation, error) {
	return func(ctx *driver.Context) (*driver.Observation, error) {
		c, err := tcg2.ReadCapability(ctx.TCG2, size)
		obs := driver.Observe(err).With("size", size)
		if c != nil {
			obs.Value = c
			obs.With("returned_size", c.Size)
			obs.With("structure_version", c.StructureVersion.String()).
				With("protocol_version", c.ProtocolVersion.String())
			if c.Has(tcg2.FieldActivePcrBanks) {
				obs.With("hash_algorithm_bitmap", c.HashAlgorithmBitmap.String()).
					With("supported_event_logs", fmt.Sprintf("%#x", uint32(c.SupportedEventLogs))).
					With("number_of_pcr_banks", c.NumberOfPcrBanks).
					With("active_pcr_banks", c.ActivePcrBanks.String())
			}
		}
		return obs, nil
	}
}

// capabilityCheck evaluates check only when the fields it reads were filled.
func capabilityCheck(fields []tcg2.Field, check func(*tcg2.Capability) bool, msg string) driver.Predicate {
	return func(o *driver.Observation) []string {
		c, ok := o.Value.(*tcg2.Capability)
		if !ok {
			return []string{"no capability structure returned"}
		}
		for _, f := range fields {
			if !c.Has(f) {
				return nil
			}
		}
		if check(c) {
			return nil
		}
		return []string{msg}
	}
}

var (
	structureVersion11 = capabilityCheck([]tcg2.Field{tcg2.FieldStructureVersion},
		func(c *tcg2.Capability) bool { return c.StructureVersion == tcg2.Version11 },
		"StructureVersion must be 1.1")
	protocolVersion11 = capabilityCheck([]tcg2.Field{tcg2.FieldProtocolVersion},
		func(c *tcg2.Capability) bool { return c.ProtocolVersion == tcg2.Version11 },
		"ProtocolVersion must be 1.1")
)

func GetCapability() *driver.TestCase {
	return &driver.TestCase{
		Name:         "TCG2.GetCapability",
		GUID:         uuid.MustParse("5153d6f2-f0db-477d-bc21-334bee6c52c3"),
		Description:  "GetCapability conformance",
		Precondition: requireProtocol,
		Checkpoints: []driver.Checkpoint{
			driver.NewCheckpoint("d3aa1931-28f7-4780-8229-3f156b46b877",
				"TCG2_PROTOCOL.GetCapability - returns EFI_INVALID_PARAMETER with a NULL capability structure",
				func(ctx *driver.Context) (*driver.Observation, error) {
					return driver.Observe(ctx.TCG2.GetCapability(nil)), nil
				},
				driver.ExpectStatus(status.INVALID_PARAMETER)),
			driver.NewCheckpoint("0200506b-7381-48d5-bac9-e087565aef6a",
				"TCG2_PROTOCOL.GetCapability - versions with a structure smaller than full size",
				observeCapability(tcg2.PartialCapabilitySize),
				driver.All(structureVersion11, protocolVersion11)),
			driver.NewCheckpoint("d192353c-e515-4065-ad2e-85df06bb63e0",
				"TCG2_PROTOCOL.GetCapability - full size structure",
				observeCapability(tcg2.CapabilitySize),
				driver.All(
					driver.ExpectStatus(status.SUCCESS),
					structureVersion11,
					protocolVersion11,
					capabilityCheck([]tcg2.Field{tcg2.FieldSupportedEventLogs},
						func(c *tcg2.Capability) bool { return c.SupportedEventLogs&tcg2.EventLogTCG2 != 0 },
						"must support the TCG2 event log format"),
					capabilityCheck([]tcg2.Field{tcg2.FieldNumberOfPcrBanks},
						func(c *tcg2.Capability) bool { return c.NumberOfPcrBanks >= 1 },
						"expected at least 1 PCR bank"),
					capabilityCheck([]tcg2.Field{tcg2.FieldHashAlgorithmBitmap},
						func(c *tcg2.Capability) bool { return c.HashAlgorithmBitmap&tcg2.HashStrong != 0 },
						"unexpected hash algorithms reported"),
					capabilityCheck([]tcg2.Field{tcg2.FieldActivePcrBanks},
						func(c *tcg2.Capability) bool { return c.ActivePcrBanks&tcg2.HashStrong != 0 },
						"unexpected active PCR banks reported"),
				)),
		},
	}
}

type bankObservation struct {
	active     tcg2.HashAlgorithmBitmap
	capability *tcg2.Capability
}

func GetActivePcrBanks() *driver.TestCase {
	return &driver.TestCase{
		Name:         "TCG2.GetActivePcrBanks",
		GUID:         uuid.MustParse("724424e7-29eb-4573-ac64-5fdac446f1af"),
		Description:  "GetActivePcrBanks conformance",
		Precondition: requireProtocol,
		Checkpoints: []driver.Checkpoint{
			driver.NewCheckpoint("e8042da8-5e78-490c-a521-91ffa15e5cd6",
				"TCG2_PROTOCOL.GetActivePcrBanks - returns EFI_INVALID_PARAMETER with a NULL pointer",
				func(ctx *driver.Context) (*driver.Observation, error) {
					return driver.Observe(ctx.TCG2.GetActivePcrBanks(nil)), nil
				},
				driver.ExpectStatus(status.INVALID_PARAMETER)),
			driver.NewCheckpoint("cb9be7bd-775d-47ba-b33e-ffd6c90f8002",
				"TCG2_PROTOCOL.GetActivePcrBanks - agrees with GetCapability",
				func(ctx *driver.Context) (*driver.Observation, error) {
					c, err := tcg2.ReadCapability(ctx.TCG2, tcg2.CapabilitySize)
					if err != nil {
						return driver.Observe(err).With("call", "GetCapability"), nil
					}
					active, err := tcg2.ActivePcrBanks(ctx.TCG2)
					obs := driver.Observe(err).
						With("active_pcr_banks", active.String()).
						With("capability_active_pcr_banks", c.ActivePcrBanks.String()).
						With("hash_algorithm_bitmap", c.HashAlgorithmBitmap.String())
					if err == nil {
						obs.Value = bankObservation{active: active, capability: c}
					}
					return obs, nil
				},
				driver.All(
					driver.ExpectStatus(status.SUCCESS),
					bankCheck(func(b bankObservation) bool { return b.active == b.capability.ActivePcrBanks },
						"active PCR banks differ from the capability structure"),
					bankCheck(func(b bankObservation) bool { return b.capability.HashAlgorithmBitmap.Has(b.active) },
						"active PCR banks are not a subset of the supported hash algorithms"),
				)),
		},
	}
}

func bankCheck(check func(bankObservation) bool, msg string) driver.Predicate {
	return func(o *driver.Observation) []string {
		b, ok := o.Value.(bankObservation)
		if !ok || check(b) {
			return nil
		}
		return []string{msg}
	}
}

// observeEvent calls HashLogExtendEvent with the given arguments.
func observeEvent(flags uint64, data []byte, event func() *tcg2.Event) func(*driver.Context) (*driver.Observation, error) {
	return func(ctx *driver.Context) (*driver.Observation, error) {
		ev := event()
		obs := driver.Observe(ctx.TCG2.HashLogExtendEvent(flags, data, ev)).With("flags", fmt.Sprintf("%#x", flags))
		if ev != nil {
			obs.With("event_size", ev.Size).With("pcr_index", ev.Header.PCRIndex)
		}
		return obs, nil
	}
}

var measuredData = []byte("go-uefi-sct HashLogExtendEvent")

func testEvent() *tcg2.Event {
	return tcg2.NewEvent(TestPCR, tcglog.EventTypeIPL, []byte("go-uefi-sct test event"))
}

func HashLogExtendEvent() *driver.TestCase {
	return &driver.TestCase{
		Name:         "TCG2.HashLogExtendEvent",
		GUID:         uuid.MustParse("68aefe8f-3066-4a4c-8c09-ee784b846aa0"),
		Description:  "HashLogExtendEvent conformance",
		Precondition: requireProtocol,
		Checkpoints: []driver.Checkpoint{
			driver.NewCheckpoint("4e03695b-a1af-434c-8623-e5da91abfd21",
				"TCG2_PROTOCOL.HashLogExtendEvent - returns EFI_INVALID_PARAMETER with a NULL event",
				observeEvent(0, measuredData, func() *tcg2.Event { return nil }),
				driver.ExpectStatus(status.INVALID_PARAMETER)),
			driver.NewCheckpoint("f3733e52-1f09-47ac-9319-a518eacef1d8",
				"TCG2_PROTOCOL.HashLogExtendEvent - returns EFI_INVALID_PARAMETER with an undersized event",
				observeEvent(0, measuredData, func() *tcg2.Event {
					ev := testEvent()
					ev.Size = tcg2.MinEventSize - 1
					return ev
				}),
				driver.ExpectStatus(status.INVALID_PARAMETER)),
			driver.NewCheckpoint("891a6472-1804-4c7c-baf6-a1fa0447374c",
				"TCG2_PROTOCOL.HashLogExtendEvent - returns EFI_INVALID_PARAMETER with an invalid PCR index",
				observeEvent(0, measuredData, func() *tcg2.Event {
					ev := testEvent()
					ev.Header.PCRIndex = tcg2.MaxPCRIndex + 1
					return ev
				}),
				driver.ExpectStatus(status.INVALID_PARAMETER)),
			driver.NewCheckpoint("2673c517-b1de-4ec9-98d8-3557b41bb87b",
				"TCG2_PROTOCOL.HashLogExtendEvent - returns EFI_UNSUPPORTED for PE_COFF_IMAGE with a non PE buffer",
				observeEvent(tcg2.PECOFFImage, measuredData, testEvent),
				driver.ExpectStatus(status.UNSUPPORTED)).At(driver.LevelDefault),
			driver.NewCheckpoint("1b2f5f24-9626-4f11-ae4a-37cbe947eb69",
				"TCG2_PROTOCOL.HashLogExtendEvent - a valid event is measured and logged",
				extendAndRead,
				driver.All(driver.ExpectStatus(status.SUCCESS), loggedEventCheck)).At(driver.LevelDefault),
		},
	}
}

type loggedEvent struct {
	active tcg2.HashAlgorithmBitmap
	event  *tcglog.Event
}

func extendAndRead(ctx *driver.Context) (*driver.Observation, error) {
	ev := testEvent()
	if err := ctx.TCG2.HashLogExtendEvent(0, measuredData, ev); err != nil {
		return driver.Observe(err).With("call", "HashLogExtendEvent"), nil
	}
	active, err := tcg2.ActivePcrBanks(ctx.TCG2)
	if err != nil {
		return driver.Observe(err).With("call", "GetActivePcrBanks"), nil
	}
	el, err := ctx.TCG2.GetEventLog(tcg2.EventLogFormatTCG2)
	if err != nil {
		return driver.Observe(err).With("call", "GetEventLog"), nil
	}
	log, err := el.Parse()
	if err != nil {
		return driver.Observe(nil).With("parse_error", err.Error()), nil
	}
	obs := driver.Observe(nil).With("active_pcr_banks", active.String()).With("events", len(log.Events))
	if len(log.Events) > 0 {
		last := log.Events[len(log.Events)-1]
		obs.Value = loggedEvent{active: active, event: last}
		obs.With("last_pcr_index", uint32(last.PCRIndex)).With("last_event_type", last.EventType.String())
	}
	return obs, nil
}

func loggedEventCheck(o *driver.Observation) []string {
	if msg, ok := o.Fields["parse_error"].(string); ok {
		return []string{"event log does not parse: " + msg}
	}
	if o.Status != status.SUCCESS {
		return nil
	}
	le, ok := o.Value.(loggedEvent)
	if !ok {
		return []string{"event log is empty"}
	}
	var out []string
	if le.event.PCRIndex != TestPCR || le.event.EventType != tcglog.EventTypeIPL {
		out = append(out, fmt.Sprintf("last log entry is %s on PCR %d, not the measured event", le.event.EventType, le.event.PCRIndex))
	}
	for _, alg := range le.active.Algorithms() {
		digest, ok := le.event.Digests[alg]
		if !ok {
			out = append(out, fmt.Sprintf("no %s digest logged", alg))
			continue
		}
		if !alg.Available() {
			continue
		}
		h := alg.NewHash()
		h.Write(measuredData)
		if !bytes.Equal(digest, h.Sum(nil)) {
			out = append(out, fmt.Sprintf("%s digest does not match the measured data", alg))
		}
	}
	return out
}

func GetEventLog() *driver.TestCase {
	return &driver.TestCase{
		Name:         "TCG2.GetEventLog",
		GUID:         uuid.MustParse("d40b8e33-bfb7-4d07-a542-e88f4b0c76a3"),
		Description:  "GetEventLog conformance",
		Precondition: requireProtocol,
		Checkpoints: []driver.Checkpoint{
			driver.NewCheckpoint("22ce6e4f-6b12-420c-967c-445832605345",
				"TCG2_PROTOCOL.GetEventLog - returns EFI_INVALID_PARAMETER for an unsupported format",
				func(ctx *driver.Context) (*driver.Observation, error) {
					_, err := ctx.TCG2.GetEventLog(0)
					return driver.Observe(err), nil
				},
				driver.ExpectStatus(status.INVALID_PARAMETER)),
			driver.NewCheckpoint("d9f5ccaf-2daf-4ef5-899e-2f68fb2ee8d9",
				"TCG2_PROTOCOL.GetEventLog - TCG2 log starts with a Spec ID event covering the active banks",
				readSpecID,
				driver.All(driver.ExpectStatus(status.SUCCESS), specIDCheck)),
		},
	}
}

type specID struct {
	active tcg2.HashAlgorithmBitmap
	log    *tcglog.Log
}

func readSpecID(ctx *driver.Context) (*driver.Observation, error) {
	el, err := ctx.TCG2.GetEventLog(tcg2.EventLogFormatTCG2)
	if err != nil {
		return driver.Observe(err), nil
	}
	active, err := tcg2.ActivePcrBanks(ctx.TCG2)
	if err != nil {
		return driver.Observe(err).With("call", "GetActivePcrBanks"), nil
	}
	obs := driver.Observe(nil).With("log_size", len(el.Data)).With("last_entry", el.LastEntry)
	log, err := el.Parse()
	if err != nil {
		return obs.With("parse_error", err.Error()), nil
	}
	obs.Value = specID{active: active, log: log}
	return obs, nil
}

func specIDCheck(o *driver.Observation) []string {
	if msg, ok := o.Fields["parse_error"].(string); ok {
		return []string{"event log does not parse: " + msg}
	}
	s, ok := o.Value.(specID)
	if !ok {
		return nil
	}
	if len(s.log.Events) == 0 {
		return []string{"event log is empty"}
	}
	if _, ok := s.log.Events[0].Data.(*tcglog.SpecIdEvent03); !ok {
		return []string{fmt.Sprintf("first event is %s, not a Spec ID event", s.log.Events[0].EventType)}
	}
	var out []string
	for _, alg := range s.active.Algorithms() {
		if !slices.Contains(s.log.Algorithms, alg) {
			out = append(out, fmt.Sprintf("active bank %s missing from the Spec ID event", alg))
		}
	}
	return out
}
