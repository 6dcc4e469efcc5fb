// Package certtest provides test helper functions for certificate generation
package certtest

import (
	"testing"

	"github.com/foxboron/go-uefi-sct/internal/keys"
)

// MkKeyPair creates a self-signed key pair
func MkKeyPair(t *testing.T, name string) *keys.KeyPair {
	t.Helper()
	k, err := keys.New(name, nil)
	if err != nil {
		t.Fatalf("Failed to create key pair %s: %v", name, err)
	}
	return k
}

// MkIssuedKeyPair creates a key pair whose certificate is issued by parent
func MkIssuedKeyPair(t *testing.T, name string, parent *keys.KeyPair) *keys.KeyPair {
	t.Helper()
	k, err := keys.New(name, parent)
	if err != nil {
		t.Fatalf("Failed to create key pair %s: %v", name, err)
	}
	return k
}
