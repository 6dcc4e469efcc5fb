package signature

import (
	"bytes"
	"crypto/x509"
	"errors"
	"testing"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/foxboron/go-uefi-sct/internal/certtest"
)

func signedKEK(t *testing.T, ctx *EFIVariableSigningContext) []byte {
	t.Helper()
	b, err := SignEFIVariable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSignAndVerifyEFIVariable(t *testing.T) {
	pk := certtest.MkKeyPair(t, "PK")
	kek := certtest.MkKeyPair(t, "KEK")
	sl := NewSignatureList(CERT_X509_GUID)
	sl.AppendBytes(util.EFIGUID{}, kek.Cert.Raw)

	ctx := &EFIVariableSigningContext{
		Cert:    pk.Cert,
		Key:     pk.Key,
		Varname: "KEK",
		Guid:    attributes.EFI_GLOBAL_VARIABLE,
		Attr:    attributes.AuthenticatedVariable,
		Data:    sl.Bytes(),
	}
	payload := signedKEK(t, ctx)

	efva, data, err := VerifyEFIVariable("KEK", attributes.EFI_GLOBAL_VARIABLE, attributes.AuthenticatedVariable, payload, []*x509.Certificate{pk.Cert})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, sl.Bytes()) {
		t.Fatal("payload data mismatch")
	}
	if efva.Size() != len(payload)-len(data) {
		t.Fatalf("descriptor size %d does not match the payload", efva.Size())
	}
	if hasContentInfo(efva.AuthInfo.CertData) {
		t.Fatal("descriptor carries a ContentInfo, expected bare SignedData")
	}
}

func TestVerifyRejects(t *testing.T) {
	pk := certtest.MkKeyPair(t, "PK")
	other := certtest.MkKeyPair(t, "other")
	ctx := &EFIVariableSigningContext{
		Cert:    pk.Cert,
		Key:     pk.Key,
		Varname: "db",
		Guid:    attributes.EFI_IMAGE_SECURITY_DATABASE_GUID,
		Attr:    attributes.AuthenticatedVariable,
		Data:    []byte("data"),
	}
	payload := signedKEK(t, ctx)

	cases := []struct {
		name    string
		varname string
		attrs   attributes.Attributes
		payload []byte
		trusted []*x509.Certificate
		want    error
	}{
		{"untrusted signer", "db", attributes.AuthenticatedVariable, payload, []*x509.Certificate{other.Cert}, ErrUntrustedSign},
		{"wrong name", "dbx", attributes.AuthenticatedVariable, payload, []*x509.Certificate{pk.Cert}, ErrBadSignature},
		{"wrong attributes", "db", attributes.EFI_VARIABLE_NON_VOLATILE, payload, []*x509.Certificate{pk.Cert}, ErrBadSignature},
		{"no descriptor", "db", attributes.AuthenticatedVariable, []byte("unsigned"), []*x509.Certificate{pk.Cert}, ErrNoAuthHeader},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := VerifyEFIVariable(c.varname, attributes.EFI_IMAGE_SECURITY_DATABASE_GUID, c.attrs, c.payload, c.trusted)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestVerifyIssuedSigner(t *testing.T) {
	kek := certtest.MkKeyPair(t, "KEK")
	signer := certtest.MkIssuedKeyPair(t, "KEK signer", kek)
	payload := signedKEK(t, &EFIVariableSigningContext{
		Cert:    signer.Cert,
		Key:     signer.Key,
		Varname: "db",
		Guid:    attributes.EFI_IMAGE_SECURITY_DATABASE_GUID,
		Attr:    attributes.AuthenticatedVariable,
	})
	if _, _, err := VerifyEFIVariable("db", attributes.EFI_IMAGE_SECURITY_DATABASE_GUID, attributes.AuthenticatedVariable, payload, []*x509.Certificate{kek.Cert}); err != nil {
		t.Fatal(err)
	}
}

func TestReadEFIVariableAuthentication2(t *testing.T) {
	efva := NewEFIVariableAuthentication2()
	efva.AuthInfo.CertData = []byte{1, 2, 3, 4}
	efva.AuthInfo.Header.Length += 4
	b := append(efva.Bytes(), 0xaa)
	got, rest, err := ReadAuthenticatedPayload(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.AuthInfo.CertData, efva.AuthInfo.CertData) || got.Time != efva.Time {
		t.Fatalf("descriptor mismatch: %+v", got)
	}
	if !bytes.Equal(rest, []byte{0xaa}) {
		t.Fatalf("unexpected trailing data %x", rest)
	}
}

func TestContentInfoWrapping(t *testing.T) {
	bare := []byte{0x30, 0x03, 0x02, 0x01, 0x01}
	wrapped, err := wrapContentInfo(bare)
	if err != nil {
		t.Fatal(err)
	}
	if !hasContentInfo(wrapped) {
		t.Fatal("wrapped data has no ContentInfo")
	}
	back, err := stripContentInfo(wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, bare) {
		t.Fatalf("strip returned %x", back)
	}
}
