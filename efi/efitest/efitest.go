// Package efitest holds efivarfs file fixtures for in-memory filesystems.
package efitest

import (
	"path"
	"testing/fstest"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/util"
)

// Efivar returns a single efivarfs file with the attribute prefix.
func Efivar(name string, guid util.EFIGUID, attrs attributes.Attributes, data []byte) fstest.MapFS {
	p := path.Join(attributes.Efivars, name+"-"+guid.Format())
	return fstest.MapFS{
		p: {Data: append(attrs.Bytes(), data...)},
	}
}
