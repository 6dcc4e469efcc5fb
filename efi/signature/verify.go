package signature

import (
	"bytes"
	"crypto/x509"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/pkg/errors"
	"go.mozilla.org/pkcs7"
)

var (
	ErrNoAuthHeader  = errors.New("no authentication descriptor")
	ErrUntrustedSign = errors.New("signer is not trusted")
	ErrBadSignature  = errors.New("signature verification failed")
)

// ReadAuthenticatedPayload splits a SetVariable buffer into the descriptor
// and the variable data following it.
func ReadAuthenticatedPayload(b []byte) (*EFIVariableAuthentication2, []byte, error) {
	r := bytes.NewReader(b)
	efva, err := ReadEFIVariableAuthencation2(r)
	if err != nil {
		return nil, nil, errors.Wrap(ErrNoAuthHeader, err.Error())
	}
	return efva, b[len(b)-r.Len():], nil
}

// VerifyEFIVariable checks the descriptor in front of payload against the
// variable name, vendor guid and attributes. The signer must be one of the
// trusted certificates or be issued by one of them. It returns the
// descriptor and the data following it.
func VerifyEFIVariable(name string, guid util.EFIGUID, attrs attributes.Attributes, payload []byte, trusted []*x509.Certificate) (*EFIVariableAuthentication2, []byte, error) {
	efva, data, err := ReadAuthenticatedPayload(payload)
	if err != nil {
		return nil, nil, err
	}
	der, err := wrapContentInfo(efva.AuthInfo.CertData)
	if err != nil {
		return nil, nil, errors.Wrap(ErrBadSignature, err.Error())
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, nil, errors.Wrap(ErrBadSignature, err.Error())
	}
	p7.Content = SignedPayload(name, guid, attrs, efva.Time, data)
	if err := p7.Verify(); err != nil {
		return nil, nil, errors.Wrap(ErrBadSignature, err.Error())
	}
	signer := p7.GetOnlySigner()
	if signer == nil {
		return nil, nil, errors.Wrap(ErrBadSignature, "expected exactly one signer")
	}
	for _, c := range trusted {
		if signer.Equal(c) || signer.CheckSignatureFrom(c) == nil {
			return efva, data, nil
		}
	}
	return nil, nil, errors.Wrapf(ErrUntrustedSign, "%s", signer.Subject)
}
