// Package keys generates the RSA key pairs used for secure boot fixtures.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/pkg/errors"
)

// Firmware only has to support RSA-2048 for key databases.
const KeySize = 2048

type KeyPair struct {
	Name string
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
}

// New creates a key pair with a certificate valid for ten years. The
// certificate is self-signed when issuer is nil.
func New(name string, issuer *KeyPair) (*KeyPair, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate serial number")
	}
	key, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serialNumber,
		PublicKeyAlgorithm:    x509.RSA,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		Subject:               pkix.Name{CommonName: name, Organization: []string{"go-uefi-sct"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	parent, signer := template, key
	if issuer != nil {
		parent, signer = issuer.Cert, issuer.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create certificate for %s", name)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Name: name, Key: key, Cert: cert}, nil
}

// PEM returns the PEM encoded key and certificate.
func (k *KeyPair) PEM() (key []byte, cert []byte, err error) {
	key, err = util.EncodeKey(k.Key)
	if err != nil {
		return nil, nil, err
	}
	return key, util.EncodeCert(k.Cert), nil
}

// Parse reads a key pair back from PEM.
func Parse(name string, key, cert []byte) (*KeyPair, error) {
	k, err := util.ParseKey(key)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	c, err := util.ParseCert(cert)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	return &KeyPair{Name: name, Key: k, Cert: c}, nil
}
