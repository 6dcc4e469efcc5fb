package attributes

import (
	"bytes"
	"testing"
)

func TestAttributesBytes(t *testing.T) {
	if b := AuthenticatedVariable.Bytes(); !bytes.Equal(b, []byte{0x27, 0, 0, 0}) {
		t.Fatalf("unexpected prefix: %x", b)
	}
}

func TestAttributesString(t *testing.T) {
	a := AuthenticatedVariable | EFI_VARIABLE_APPEND_WRITE
	if s := a.String(); s != "NV|BS|RT|AT|AP" {
		t.Fatalf("String() = %s", s)
	}
	if a.Persistent() != AuthenticatedVariable {
		t.Fatalf("Persistent() kept the append bit: %s", a.Persistent())
	}
}

func TestGuidFor(t *testing.T) {
	if GuidFor("db") != EFI_IMAGE_SECURITY_DATABASE_GUID {
		t.Fatal("db is not in the image security database")
	}
	if GuidFor("KEK") != EFI_GLOBAL_VARIABLE {
		t.Fatal("KEK is not a global variable")
	}
}
