package tcg2

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/canonical/go-tpm2"
	"github.com/canonical/tcglog-parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/tcg2/peimage"
)

var testCapability = BootServiceCapability{
	Size:                CapabilitySize,
	StructureVersion:    Version11,
	ProtocolVersion:     Version11,
	HashAlgorithmBitmap: HashSHA1 | HashSHA256,
	SupportedEventLogs:  EventLogTCG2,
	TPMPresentFlag:      1,
	MaxCommandSize:      0x1000,
	MaxResponseSize:     0x1000,
	ManufacturerID:      0x494e5443,
	NumberOfPcrBanks:    2,
	ActivePcrBanks:      HashSHA256,
}

func TestCapabilityLayout(t *testing.T) {
	b := testCapability.Bytes()
	require.Len(t, b, CapabilitySize)
	assert.Equal(t, []byte{30, 1, 1, 1, 1, 3, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0x10, 0, 0x10}, b[:18])
	assert.Equal(t, []byte{0x43, 0x54, 0x4e, 0x49, 2, 0, 0, 0, 2, 0, 0, 0}, b[18:])

	c, err := ParseCapability(b)
	require.NoError(t, err)
	assert.Equal(t, testCapability, *c)
}

func TestFillCapabilityHonoursSize(t *testing.T) {
	for _, size := range []int{PartialCapabilitySize, int(FieldSupportedEventLogs), CapabilitySize} {
		buf := bytes.Repeat([]byte{0xff}, CapabilitySize)
		buf[0] = uint8(size)
		FillCapability(&testCapability, buf)

		assert.Equal(t, bytes.Repeat([]byte{0xff}, CapabilitySize-size), buf[size:], "size %d wrote past the end", size)
		got, err := ParseCapability(buf[:size])
		require.NoError(t, err)
		assert.Equal(t, Version11, got.StructureVersion)
		assert.Equal(t, Version11, got.ProtocolVersion)
	}
}

// sizeClobber fills the caller's buffer but writes 0 back into Size.
type sizeClobber struct{ Protocol }

func (s sizeClobber) GetCapability(capability []byte) error {
	FillCapability(&testCapability, capability)
	capability[0] = 0
	return nil
}

func TestCapabilityHasUsesRequestedSize(t *testing.T) {
	for _, c := range []struct {
		size uint8
		has  []Field
		not  []Field
	}{
		{PartialCapabilitySize, []Field{FieldSize, FieldStructureVersion, FieldProtocolVersion}, []Field{FieldHashAlgorithmBitmap, FieldActivePcrBanks}},
		{uint8(FieldSupportedEventLogs), []Field{FieldHashAlgorithmBitmap, FieldSupportedEventLogs}, []Field{FieldTPMPresentFlag}},
		{CapabilitySize, []Field{FieldProtocolVersion, FieldActivePcrBanks}, nil},
	} {
		got, err := ReadCapability(sizeClobber{}, c.size)
		require.NoError(t, err)
		assert.EqualValues(t, 0, got.Size)
		assert.Equal(t, c.size, got.Requested)
		for _, f := range c.has {
			assert.True(t, got.Has(f), "size %d field %d", c.size, f)
		}
		for _, f := range c.not {
			assert.False(t, got.Has(f), "size %d field %d", c.size, f)
		}
	}
}

func TestFillCapabilityTinySize(t *testing.T) {
	buf := []byte{0}
	FillCapability(&testCapability, buf)
	assert.Equal(t, []byte{0}, buf)
}

func TestParseCapabilityEmpty(t *testing.T) {
	_, err := ParseCapability(nil)
	assert.ErrorIs(t, err, ErrShortCapability)
}

func TestHashAlgorithmBitmap(t *testing.T) {
	b := HashSHA256 | HashSHA384
	assert.Equal(t, []tpm2.HashAlgorithmId{tpm2.HashAlgorithmSHA256, tpm2.HashAlgorithmSHA384}, b.Algorithms())
	assert.Equal(t, HashSHA512, BitmapFor(tpm2.HashAlgorithmSHA512))
	assert.Zero(t, BitmapFor(tpm2.HashAlgorithmNull))
	assert.True(t, (HashSHA1 | HashSHA256).Has(HashSHA256))
	assert.False(t, HashSHA1.Has(HashSHA1|HashSHA256))
	assert.Equal(t, fmt.Sprint(tpm2.HashAlgorithmSHA256)+"|"+fmt.Sprint(tpm2.HashAlgorithmSHA384), b.String())
	assert.Equal(t, "none", HashAlgorithmBitmap(0).String())
	assert.Contains(t, HashAlgorithmBitmap(0x100).String(), "0x100")
}

func TestEventRoundTrip(t *testing.T) {
	ev := NewEvent(16, tcglog.EventTypeIPL, []byte("measured"))
	assert.EqualValues(t, MinEventSize+8, ev.Size)
	b := ev.Bytes()
	require.Len(t, b, int(ev.Size))

	got, err := ReadEvent(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestValidateEvent(t *testing.T) {
	good := func() *Event { return NewEvent(16, tcglog.EventTypeIPL, []byte("x")) }
	for _, c := range []struct {
		name  string
		flags uint64
		data  []byte
		event func() *Event
		want  error
	}{
		{"valid", 0, []byte("x"), good, nil},
		{"null event", 0, []byte("x"), func() *Event { return nil }, status.INVALID_PARAMETER},
		{"undersized", 0, []byte("x"), func() *Event { e := good(); e.Size = MinEventSize - 1; return e }, status.INVALID_PARAMETER},
		{"header size", 0, []byte("x"), func() *Event { e := good(); e.Header.HeaderSize = 12; return e }, status.INVALID_PARAMETER},
		{"header version", 0, []byte("x"), func() *Event { e := good(); e.Header.HeaderVersion = 2; return e }, status.INVALID_PARAMETER},
		{"pcr 23", 0, []byte("x"), func() *Event { e := good(); e.Header.PCRIndex = 23; return e }, nil},
		{"pcr 24", 0, []byte("x"), func() *Event { e := good(); e.Header.PCRIndex = 24; return e }, status.INVALID_PARAMETER},
		{"pe flag with data", PECOFFImage, []byte("not an image"), good, status.UNSUPPORTED},
		{"pe flag with image", PECOFFImage, peimage.Build([]byte("code")), good, nil},
	} {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateEvent(c.flags, c.data, c.event())
			if c.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, c.want, err)
		})
	}
}

func TestMeasuredBytes(t *testing.T) {
	data := []byte("plain")
	got, err := MeasuredBytes(0, data)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	img := peimage.Build([]byte("code"))
	got, err = MeasuredBytes(PECOFFImage, img)
	require.NoError(t, err)
	assert.Len(t, got, len(img)-12)
}
