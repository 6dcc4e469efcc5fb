package signature

import (
	"bytes"
	"testing"

	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/foxboron/go-uefi-sct/internal/certtest"
)

var sigdata = []SignatureData{
	SignatureData{Owner: util.EFIGUID{Data1: 0xc1095e1b, Data2: 0x8a3b, Data3: 0x4cf5, Data4: [8]uint8{0x9d, 0x4a, 0xaf, 0xc7, 0xd7, 0x5d, 0xca, 0x68}}, Data: []uint8{0x81, 0xb4, 0xd9, 0x69, 0x31, 0xbf, 0xd, 0x2, 0xfd, 0x91, 0xa6, 0x1e, 0x19, 0xd1, 0x4f, 0x1d, 0xa4, 0x52, 0xe6, 0x6d, 0xb2, 0x40, 0x8c, 0xa8, 0x60, 0x4d, 0x41, 0x1f, 0x92, 0x65, 0x9f, 0xa}},
	SignatureData{Owner: util.EFIGUID{Data1: 0xc1095e1b, Data2: 0x8a3b, Data3: 0x4cf5, Data4: [8]uint8{0x9d, 0x4a, 0xaf, 0xc7, 0xd7, 0x5d, 0xca, 0x68}}, Data: []uint8{0x82, 0xb4, 0xd9, 0x69, 0x31, 0xbf, 0xd, 0x2, 0xfd, 0x91, 0xa6, 0x1e, 0x19, 0xd1, 0x4f, 0x1d, 0xa4, 0x52, 0xe6, 0x6d, 0xb2, 0x40, 0x8c, 0xa8, 0x60, 0x4d, 0x41, 0x1f, 0x92, 0x65, 0x9f, 0xa}},
	SignatureData{Owner: util.EFIGUID{Data1: 0xc1095e1b, Data2: 0x8a3b, Data3: 0x4cf5, Data4: [8]uint8{0x9d, 0x4a, 0xaf, 0xc7, 0xd7, 0x5d, 0xca, 0x68}}, Data: []uint8{0x83, 0xb4, 0xd9, 0x69, 0x31, 0xbf, 0xd, 0x2, 0xfd, 0x91, 0xa6, 0x1e, 0x19, 0xd1, 0x4f, 0x1d, 0xa4, 0x52, 0xe6, 0x6d, 0xb2, 0x40, 0x8c, 0xa8, 0x60, 0x4d, 0x41, 0x1f, 0x92, 0x65, 0x9f, 0xa}},
}

func TestSiglist(t *testing.T) {
	sl := NewSignatureList(CERT_SHA256_GUID)
	for _, sig := range sigdata {
		sl.AppendBytes(sig.Owner, sig.Data)
	}
	if sl.ListSize != 172 {
		t.Fatal("list size incorrect")
	}
	if sl.Size != 48 {
		t.Fatal("size incorrect")
	}
	if len(sl.Signatures) != 3 {
		t.Fatal("number of signatures wrong")
	}
}

func TestSiglistExists(t *testing.T) {
	sl1 := NewSignatureList(CERT_SHA256_GUID)
	for _, sig := range sigdata {
		sl1.AppendBytes(sig.Owner, sig.Data)
	}
	sl2 := NewSignatureList(CERT_SHA256_GUID)
	for _, sig := range sigdata {
		sl2.AppendBytes(sig.Owner, sig.Data)
	}
	if !sl1.ExistsInList(sl2) {
		t.Fatal("exists: not the same list")
	}
}

func TestSiglistSigDataExists(t *testing.T) {
	sl := NewSignatureList(CERT_SHA256_GUID)
	for _, sig := range sigdata {
		sl.AppendBytes(sig.Owner, sig.Data)
	}
	if ok, _ := sl.Exists(&sigdata[0]); !ok {
		t.Fatal("exists: sigdata is not in the list")
	}
}

func TestSiglistRoundTrip(t *testing.T) {
	sl := NewSignatureList(CERT_SHA256_GUID)
	for _, sig := range sigdata {
		if err := sl.AppendSignature(sig); err != nil {
			t.Fatal(err)
		}
	}
	back, err := ReadSignatureList(bytes.NewReader(sl.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if !back.CmpHeader(sl) || !back.ExistsInList(sl) || back.ListSize != sl.ListSize {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestSiglistX509(t *testing.T) {
	k := certtest.MkKeyPair(t, "KEK")
	owner := util.MustGUID("77fa9abd-0359-4d32-bd60-28f4e78f784b")
	sl := NewSignatureList(CERT_X509_GUID)
	if err := sl.AppendBytes(owner, k.Cert.Raw); err != nil {
		t.Fatal(err)
	}
	if sl.Size != uint32(len(k.Cert.Raw))+16 {
		t.Fatalf("unexpected signature size %d", sl.Size)
	}
	db, err := ReadSignatureDatabase(bytes.NewReader(sl.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	certs, err := db.Certificates()
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 1 || !certs[0].Equal(k.Cert) {
		t.Fatal("certificate not found in the database")
	}
}

func TestSiglistRejectsWrongHashSize(t *testing.T) {
	sl := NewSignatureList(CERT_SHA256_GUID)
	if err := sl.AppendBytes(util.EFIGUID{}, []byte{1, 2, 3}); err == nil {
		t.Fatal("appended a 3 byte sha256 hash")
	}
}

func TestReadSignatureListTruncated(t *testing.T) {
	sl := NewSignatureList(CERT_SHA256_GUID)
	sl.AppendSignature(sigdata[0])
	b := sl.Bytes()
	if _, err := ReadSignatureList(bytes.NewReader(b[:len(b)-4])); err == nil {
		t.Fatal("read a truncated list")
	}
}

func TestSiglistRemove(t *testing.T) {
	sl := NewSignatureList(CERT_SHA256_GUID)
	for _, sig := range sigdata {
		sl.AppendSignature(sig)
	}
	if err := sl.RemoveSignature(sigdata[1]); err != nil {
		t.Fatal(err)
	}
	if len(sl.Signatures) != 2 || sl.ListSize != 28+2*48 {
		t.Fatalf("unexpected list after removal: %d signatures, size %d", len(sl.Signatures), sl.ListSize)
	}
	if err := sl.RemoveSignature(sigdata[1]); err != ErrNotFoundSigData {
		t.Fatalf("expected ErrNotFoundSigData, got %v", err)
	}
}
