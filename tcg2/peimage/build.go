package peimage

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

const (
	fileAlignment    = 0x200
	sectionAlignment = 0x1000
	peOffset         = 0x40
)

// Build returns a minimal unsigned x86-64 EFI application with a single
// .text section holding text.
func Build(text []byte) []byte {
	raw := align(len(text), fileAlignment)
	if raw == 0 {
		raw = fileAlignment
	}

	var b bytes.Buffer
	dos := make([]byte, peOffset)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], peOffset)
	b.Write(dos)
	b.WriteString("PE\x00\x00")

	binary.Write(&b, binary.LittleEndian, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader64{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE,
	})
	binary.Write(&b, binary.LittleEndian, pe.OptionalHeader64{
		Magic:               0x20b,
		SizeOfCode:          uint32(raw),
		AddressOfEntryPoint: sectionAlignment,
		BaseOfCode:          sectionAlignment,
		SectionAlignment:    sectionAlignment,
		FileAlignment:       fileAlignment,
		SizeOfImage:         uint32(sectionAlignment + align(raw, sectionAlignment)),
		SizeOfHeaders:       fileAlignment,
		Subsystem:           pe.IMAGE_SUBSYSTEM_EFI_APPLICATION,
		NumberOfRvaAndSizes: 16,
	})
	sh := pe.SectionHeader32{
		VirtualSize:      uint32(len(text)),
		VirtualAddress:   sectionAlignment,
		SizeOfRawData:    uint32(raw),
		PointerToRawData: fileAlignment,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
	}
	copy(sh.Name[:], ".text")
	binary.Write(&b, binary.LittleEndian, sh)

	b.Write(make([]byte, fileAlignment-b.Len()))
	b.Write(text)
	b.Write(make([]byte, raw-len(text)))
	return b.Bytes()
}

func align(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}
