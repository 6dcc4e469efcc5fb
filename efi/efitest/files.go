package efitest

import (
	"testing/fstest"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
)

func SecureBootOff() fstest.MapFS {
	return fstest.MapFS{
		"/sys/firmware/efi/efivars/SecureBoot-8be4df61-93ca-11d2-aa0d-00e098032b8c": {
			Data: []byte{0x6, 0x0, 0x0, 0x0, 0x0}},
	}
}

func SecureBootOn() fstest.MapFS {
	return fstest.MapFS{
		"/sys/firmware/efi/efivars/SecureBoot-8be4df61-93ca-11d2-aa0d-00e098032b8c": {
			Data: []byte{0x6, 0x0, 0x0, 0x0, 0x1}},
	}
}

func SetUpModeOn() fstest.MapFS {
	return fstest.MapFS{
		"/sys/firmware/efi/efivars/SetupMode-8be4df61-93ca-11d2-aa0d-00e098032b8c": {
			Data: []byte{0x6, 0x0, 0x0, 0x0, 0x1}},
	}
}

func SetUpModeOff() fstest.MapFS {
	return fstest.MapFS{
		"/sys/firmware/efi/efivars/SetupMode-8be4df61-93ca-11d2-aa0d-00e098032b8c": {
			Data: []byte{0x6, 0x0, 0x0, 0x0, 0x0}},
	}
}

// SecureBootTruncated has a SecureBoot variable too short to hold a
// value.
func SecureBootTruncated() fstest.MapFS {
	return Efivar("SecureBoot", attributes.EFI_GLOBAL_VARIABLE,
		attributes.EFI_VARIABLE_BOOTSERVICE_ACCESS|attributes.EFI_VARIABLE_RUNTIME_ACCESS, nil)
}
