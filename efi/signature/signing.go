package signature

import (
	"bytes"
	"crypto"
	"crypto/x509"
	encasn1 "encoding/asn1"
	"encoding/binary"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/pkg/errors"
	"go.mozilla.org/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var oidSignedData = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

// Handles the values we use for EFI Variable signatures
type EFIVariableSigningContext struct {
	Cert    *x509.Certificate
	Key     crypto.Signer
	Varname string
	Attr    attributes.Attributes
	Guid    util.EFIGUID
	Data    []byte
	// Time defaults to the current time when nil.
	Time *util.EFITime
}

// SignedPayload is the serialization the signature covers:
// VariableName, VendorGuid, Attributes, TimeStamp, Data.
func SignedPayload(name string, guid util.EFIGUID, attrs attributes.Attributes, t util.EFITime, data []byte) []byte {
	buf := new(bytes.Buffer)
	buf.Write(util.Utf16Encode(name))
	util.WriteGUID(buf, &guid)
	binary.Write(buf, binary.LittleEndian, attrs)
	binary.Write(buf, binary.LittleEndian, t)
	buf.Write(data)
	return buf.Bytes()
}

// Uses EFIVariableAuthentication2
// Section 8.2.2 - Using the EFI_VARIABLE_AUTHENTICATION_2 descriptor
func NewSignedEFIVariable(ctx *EFIVariableSigningContext) (*EFIVariableAuthentication2, error) {
	efva := NewEFIVariableAuthentication2()
	if ctx.Time != nil {
		efva.Time = *ctx.Time
	}
	payload := SignedPayload(ctx.Varname, ctx.Guid, ctx.Attr, efva.Time, ctx.Data)
	sd, err := pkcs7.NewSignedData(payload)
	if err != nil {
		return nil, errors.Wrap(err, "cannot initialize signed data")
	}

	// Page 246

	// SignedData.digestAlgorithms shall contain the digest algorithm used when
	// preparing the signature. Only a digest algorithm of SHA-256 is accepted

	// SignerInfo.digestEncryptionAlgorithm shall be set to the algorithm used to
	// sign the data. Only a digest encryption algorithm of RSA with PKCS #1 v1.5
	// padding (RSASSA_PKCS1v1_5). is accepted.
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	sd.SetEncryptionAlgorithm(pkcs7.OIDEncryptionAlgorithmRSA)

	if err := sd.AddSigner(ctx.Cert, ctx.Key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, errors.Wrap(err, "cannot add signer")
	}
	sd.RemoveUnauthenticatedAttributes()
	sd.Detach()
	der, err := sd.Finish()
	if err != nil {
		return nil, errors.Wrap(err, "cannot finish signed data")
	}
	// The descriptor carries the bare SignedData, not the ContentInfo.
	signed, err := stripContentInfo(der)
	if err != nil {
		return nil, err
	}
	efva.AuthInfo.Header.Length += uint32(len(signed))
	efva.AuthInfo.CertData = signed
	return efva, nil
}

// SignEFIVariable returns the descriptor followed by the data, the buffer
// handed to SetVariable.
func SignEFIVariable(ctx *EFIVariableSigningContext) ([]byte, error) {
	efva, err := NewSignedEFIVariable(ctx)
	if err != nil {
		return nil, err
	}
	return append(efva.Bytes(), ctx.Data...), nil
}

// hasContentInfo reports whether der starts with a ContentInfo rather than
// a SignedData sequence.
func hasContentInfo(der []byte) bool {
	s := cryptobyte.String(der)
	var inner cryptobyte.String
	if !s.ReadASN1(&inner, cbasn1.SEQUENCE) {
		return false
	}
	return inner.PeekASN1Tag(cbasn1.OBJECT_IDENTIFIER)
}

func stripContentInfo(der []byte) ([]byte, error) {
	if !hasContentInfo(der) {
		return der, nil
	}
	s := cryptobyte.String(der)
	var ci, content, sd cryptobyte.String
	var oid encasn1.ObjectIdentifier
	if !s.ReadASN1(&ci, cbasn1.SEQUENCE) ||
		!ci.ReadASN1ObjectIdentifier(&oid) ||
		!ci.ReadASN1(&content, cbasn1.Tag(0).ContextSpecific().Constructed()) ||
		!content.ReadASN1Element(&sd, cbasn1.SEQUENCE) {
		return nil, errors.New("malformed ContentInfo")
	}
	if !oid.Equal(oidSignedData) {
		return nil, errors.Errorf("unexpected content type %s", oid)
	}
	return sd, nil
}

func wrapContentInfo(der []byte) ([]byte, error) {
	if hasContentInfo(der) {
		return der, nil
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oidSignedData)
		b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
			b.AddBytes(der)
		})
	})
	return b.Bytes()
}
