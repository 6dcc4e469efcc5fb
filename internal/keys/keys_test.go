package keys

import (
	"testing"
)

func TestNewIssued(t *testing.T) {
	root, err := New("root", nil)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := New("leaf", root)
	if err != nil {
		t.Fatal(err)
	}
	if err := leaf.Cert.CheckSignatureFrom(root.Cert); err != nil {
		t.Fatalf("leaf is not issued by root: %v", err)
	}
	if leaf.Cert.Subject.CommonName != "leaf" {
		t.Fatalf("unexpected subject %s", leaf.Cert.Subject)
	}
}

func TestPEMRoundTrip(t *testing.T) {
	k, err := New("pk", nil)
	if err != nil {
		t.Fatal(err)
	}
	key, cert, err := k.PEM()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse("pk", key, cert)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Cert.Equal(k.Cert) || !back.Key.Equal(k.Key) {
		t.Fatal("key pair did not survive PEM encoding")
	}
}
