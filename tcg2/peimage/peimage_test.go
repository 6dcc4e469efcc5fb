package peimage

import (
	"bytes"
	"crypto"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBuiltImage(t *testing.T) {
	bin := Build([]byte("hello efi"))
	require.Len(t, bin, 2*fileAlignment)

	img, err := Parse(bytes.NewReader(bin))
	require.NoError(t, err)
	assert.Zero(t, img.Datadir.Size)

	// everything but the checksum and the certificate table entry
	assert.Len(t, img.HashContent(), len(bin)-4-8)
}

func TestHashSkipsChecksum(t *testing.T) {
	bin := Build([]byte("hello efi"))
	img, err := Parse(bytes.NewReader(bin))
	require.NoError(t, err)
	want := img.Hash(crypto.SHA256)

	patched := bytes.Clone(bin)
	binary.LittleEndian.PutUint32(patched[0x40+4+20+64:], 0xdeadbeef)
	img, err = Parse(bytes.NewReader(patched))
	require.NoError(t, err)
	assert.Equal(t, want, img.Hash(crypto.SHA256))

	img, err = Parse(bytes.NewReader(Build([]byte("hello EFI"))))
	require.NoError(t, err)
	assert.NotEqual(t, want, img.Hash(crypto.SHA256))
}

func TestParseRejectsData(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("definitely not a PE image, just some bytes")))
	assert.ErrorIs(t, err, ErrNotPECOFF)
}
