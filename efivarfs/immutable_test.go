package efivarfs

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efi/util"
)

// immutableFlags stands in for the inode flags of an efivarfs mount.
func immutableFlags(t *testing.T, set map[string]bool) {
	t.Helper()
	origIs, origUnset := isImmutable, unsetImmutable
	t.Cleanup(func() { isImmutable, unsetImmutable = origIs, origUnset })
	isImmutable = func(path string) error {
		if set[path] {
			return errImmutable
		}
		return nil
	}
	unsetImmutable = func(path string) error {
		delete(set, path)
		return nil
	}
}

func TestImmutableVariable(t *testing.T) {
	guid := util.MustGUID("3b0e8e4a-4ef1-4b5d-a5c7-0e2e1d0b5e11")
	attrs := attributes.EFI_VARIABLE_NON_VOLATILE | attributes.EFI_VARIABLE_BOOTSERVICE_ACCESS
	set := map[string]bool{efivarPath("Test", guid): true}
	immutableFlags(t, set)

	fs := &EFIFS{&FSWrapper{fs: afero.NewMemMapFs(), onDisk: true}}
	fs.CheckImmutable()

	if err := fs.CheckWritable("Test", guid); !errors.Is(err, ErrImmutable) {
		t.Fatalf("expected ErrImmutable, got %v", err)
	}
	if err := fs.SetVariable("Test", guid, attrs, []byte("abc")); err != status.WRITE_PROTECTED {
		t.Fatalf("expected WRITE_PROTECTED, got %v", err)
	}
	if !set[efivarPath("Test", guid)] {
		t.Fatal("flag cleared without UnsetImmutable")
	}

	fs.UnsetImmutable()
	if err := fs.CheckWritable("Test", guid); err != nil {
		t.Fatal(err)
	}
	if set[efivarPath("Test", guid)] {
		t.Fatal("flag still set")
	}
	if err := fs.SetVariable("Test", guid, attrs, []byte("abc")); err != nil {
		t.Fatal(err)
	}
}

func TestImmutableIgnoredInMemory(t *testing.T) {
	guid := util.MustGUID("3b0e8e4a-4ef1-4b5d-a5c7-0e2e1d0b5e11")
	immutableFlags(t, map[string]bool{efivarPath("Test", guid): true})

	fs := &EFIFS{NewMemoryWrapper()}
	fs.CheckImmutable()
	if err := fs.CheckWritable("Test", guid); err != nil {
		t.Fatalf("memory filesystem has no inode flags, got %v", err)
	}
}
