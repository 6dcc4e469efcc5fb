package util

import (
	"bytes"
	"testing"
	"time"
)

func TestParseValidUtf16String(t *testing.T) {
	// This is "arch.efi", as encoded by a Dell laptop's firmware.
	value := []byte{
		97, 0, 114, 0, 99, 0, 104, 0, 46, 0, 101, 0, 102, 0, 105, 0, 0, 0,
	}
	buffer := bytes.NewBuffer(value)

	expected := "arch.efi"
	actual, err := ParseUtf16Var(buffer)
	if err != nil {
		t.Fatal(err)
	}
	if actual != expected {
		t.Fatalf("ParseUtf16Var(%v) returned %q, expected %q", value, actual, expected)
	}
}

func TestParseInvalidUtf16String(t *testing.T) {
	// This is "arch.efi", missing the final null strings.
	value := []byte{
		97, 0, 114, 0, 99, 0, 104, 0, 46, 0, 101, 0, 102, 0, 105, 0,
	}
	if _, err := ParseUtf16Var(bytes.NewBuffer(value)); err == nil {
		t.Fatalf("ParseUtf16Var did not err with a non-null-terminated string.")
	}
}

func TestUtf16EncodeName(t *testing.T) {
	got := Utf16Encode("KEK")
	want := []byte{'K', 0, 'E', 0, 'K', 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("Utf16Encode(KEK) = %v, expected %v", got, want)
	}
}

func TestGUIDRoundTrip(t *testing.T) {
	s := "8be4df61-93ca-11d2-aa0d-00e098032b8c"
	g, err := StringToGUID(s)
	if err != nil {
		t.Fatal(err)
	}
	if g.Data1 != 0x8be4df61 || g.Data2 != 0x93ca || g.Data3 != 0x11d2 {
		t.Fatalf("unexpected fields: %+v", g)
	}
	if g.Format() != s {
		t.Fatalf("Format() = %s, expected %s", g.Format(), s)
	}
	wire := g.Bytes()
	if wire[0] != 0x61 || wire[3] != 0x8b {
		t.Fatalf("Data1 is not little-endian on the wire: %x", wire)
	}
	back, err := BytesToGUID(wire)
	if err != nil {
		t.Fatal(err)
	}
	if !CmpEFIGUID(*back, *g) {
		t.Fatalf("round trip mismatch: %s != %s", back.Format(), g.Format())
	}
}

func TestStringToGUIDInvalid(t *testing.T) {
	for _, s := range []string{"", "8be4df61", "zzzzzzzz-93ca-11d2-aa0d-00e098032b8c"} {
		if _, err := StringToGUID(s); err == nil {
			t.Fatalf("StringToGUID(%q) did not fail", s)
		}
	}
}

func TestEFITimeFrom(t *testing.T) {
	ts := time.Date(2024, 3, 9, 10, 11, 12, 500, time.UTC)
	e := EFITimeFrom(ts)
	if e.Nanosecond != 0 || e.Year != 2024 || e.Second != 12 {
		t.Fatalf("unexpected EFITime: %+v", e)
	}
	if !e.Time().Equal(ts.Truncate(time.Second)) {
		t.Fatalf("Time() = %v", e.Time())
	}
}
