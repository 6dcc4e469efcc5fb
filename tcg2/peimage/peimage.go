// Package peimage computes the Authenticode image hash of a PE/COFF binary,
// which is what firmware measures for EFI_TCG2_PE_COFF_IMAGE events.
package peimage

import (
	"bytes"
	"cmp"
	"crypto"
	"debug/pe"
	"encoding/binary"
	"io"
	"slices"

	"github.com/pkg/errors"
)

var ErrNotPECOFF = errors.New("not a PE/COFF image")

// Image is a parsed PE/COFF binary reduced to the bytes that are hashed.
type Image struct {
	// Certificate table data directory
	Datadir pe.DataDirectory
	parts   []*io.SectionReader
}

// Parse walks the image the way Authenticode does: the headers without the
// checksum and certificate table entry, the sections sorted by file offset,
// then trailing data up to the certificate table, zero padded to 8 bytes.
func Parse(r io.ReaderAt) (*Image, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(ErrNotPECOFF, err.Error())
	}
	defer f.Close()

	var dosheader [0x40]byte
	if _, err := r.ReadAt(dosheader[:], 0); err != nil {
		return nil, errors.Wrap(err, "reading DOS header")
	}
	offset := int64(binary.LittleEndian.Uint32(dosheader[0x3c:])) + int64(binary.Size(f.FileHeader)) + 4

	var sizeOfHeaders, dd4start int64
	var ddEntry pe.DataDirectory
	switch opt := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dd4start = offset + 128
		sizeOfHeaders = int64(opt.SizeOfHeaders)
		ddEntry = opt.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
	case *pe.OptionalHeader64:
		dd4start = offset + 144
		sizeOfHeaders = int64(opt.SizeOfHeaders)
		ddEntry = opt.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
	default:
		return nil, errors.Wrap(ErrNotPECOFF, "missing optional header")
	}

	span := func(from, to int64) *io.SectionReader {
		return io.NewSectionReader(r, from, to-from)
	}

	cksumStart := offset + 64
	dd4end := dd4start + 8
	parts := []*io.SectionReader{
		span(0, cksumStart),
		span(cksumStart+4, dd4start),
		span(dd4end, sizeOfHeaders),
	}

	hashed := sizeOfHeaders
	sections := slices.Clone(f.Sections)
	slices.SortFunc(sections, func(a, b *pe.Section) int { return cmp.Compare(a.Offset, b.Offset) })
	for _, sec := range sections {
		if sec.Size == 0 {
			continue
		}
		parts = append(parts, io.NewSectionReader(sec, 0, int64(sec.Size)))
		hashed += int64(sec.Size)
	}

	var rest bytes.Buffer
	if _, err := io.Copy(&rest, io.NewSectionReader(r, hashed, 1<<63-1)); err != nil {
		return nil, errors.Wrap(err, "reading trailing data")
	}
	fileSize := int(hashed) + rest.Len()
	if trailing := rest.Len() - int(ddEntry.Size); trailing >= 0 {
		rest.Truncate(trailing)
	}
	rest.Write(padding(fileSize, 8))
	parts = append(parts, io.NewSectionReader(bytes.NewReader(rest.Bytes()), 0, int64(rest.Len())))

	return &Image{Datadir: ddEntry, parts: parts}, nil
}

// Open returns the hashed bytes as a stream.
func (img *Image) Open() io.Reader {
	readers := make([]io.Reader, len(img.parts))
	for i, p := range img.parts {
		readers[i] = io.NewSectionReader(p, 0, p.Size())
	}
	return io.MultiReader(readers...)
}

// HashContent returns the hashed bytes.
func (img *Image) HashContent() []byte {
	var b bytes.Buffer
	b.ReadFrom(img.Open())
	return b.Bytes()
}

// Hash returns the Authenticode digest of the image.
func (img *Image) Hash(h crypto.Hash) []byte {
	hh := h.New()
	if _, err := io.Copy(hh, img.Open()); err != nil {
		return nil
	}
	return hh.Sum(nil)
}

func padding(srcLen, blockSize int) []byte {
	full := (srcLen + blockSize - 1) &^ (blockSize - 1)
	return make([]byte, full-srcLen)
}
