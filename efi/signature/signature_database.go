package signature

import (
	"bytes"
	"crypto/x509"
	"io"

	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/pkg/errors"
)

// SignatureDatabase is a list of EFI signature lists
type SignatureDatabase []*SignatureList

// Appends the raw signature values to the database
func (sd *SignatureDatabase) Append(certtype util.EFIGUID, owner util.EFIGUID, data []byte) error {
	for _, l := range *sd {
		if !util.CmpEFIGUID(l.SignatureType, certtype) {
			continue
		}
		size := uint32(len(data)) + util.SizeofEFIGUID
		if size != l.Size {
			continue
		}
		return l.AppendSignature(SignatureData{Owner: owner, Data: data})
	}
	sl := NewSignatureList(certtype)
	if err := sl.AppendBytes(owner, data); err != nil {
		return err
	}
	*sd = append(*sd, sl)
	return nil
}

// Appends a signaure to the database. It will scan the database for the appropriate list to append
// itself to.
func (sd *SignatureDatabase) AppendSignature(certtype util.EFIGUID, sl *SignatureData) error {
	return sd.Append(certtype, sl.Owner, sl.Data)
}

// Appends a signature list to the database
func (sd *SignatureDatabase) AppendList(sl *SignatureList) {
	*sd = append(*sd, sl)
}

// Merge appends every signature of other that is not present yet. This is
// how firmware handles an EFI_VARIABLE_APPEND_WRITE to a key database.
func (sd *SignatureDatabase) Merge(other SignatureDatabase) error {
	for _, l := range other {
		for _, sig := range l.Signatures {
			if sd.SigDataExists(l.SignatureType, &sig) {
				continue
			}
			if err := sd.Append(l.SignatureType, sig.Owner, sig.Data); err != nil {
				return err
			}
		}
	}
	return nil
}

// Exists checks that every signature in the list is present in the database.
func (sd *SignatureDatabase) Exists(certtype util.EFIGUID, sl *SignatureList) bool {
	for _, sig := range sl.Signatures {
		if !sd.SigDataExists(certtype, &sig) {
			return false
		}
	}
	return true
}

func (sd *SignatureDatabase) SigDataExists(certtype util.EFIGUID, sigdata *SignatureData) bool {
	for _, l := range *sd {
		if !util.CmpEFIGUID(l.SignatureType, certtype) {
			continue
		}
		if ok, _ := l.Exists(sigdata); ok {
			return true
		}
	}
	return false
}

// Certificates returns the parsed X509 entries of the database.
func (sd *SignatureDatabase) Certificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, l := range *sd {
		if l.SignatureType != CERT_X509_GUID {
			continue
		}
		for _, sig := range l.Signatures {
			c, err := x509.ParseCertificate(sig.Data)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid certificate owned by %s", sig.Owner.Format())
			}
			certs = append(certs, c)
		}
	}
	return certs, nil
}

func (sd *SignatureDatabase) Bytes() []byte {
	buf := new(bytes.Buffer)
	WriteSignatureDatabase(buf, *sd)
	return buf.Bytes()
}

// Write a signature database which contains a slice of SignautureLists
func WriteSignatureDatabase(b io.Writer, sigdb SignatureDatabase) error {
	for _, l := range sigdb {
		if err := WriteSignatureList(b, *l); err != nil {
			return err
		}
	}
	return nil
}

// Reads several signature lists from a io.Reader. It assumes io.EOF means there
// are no more signatures to read as opposed to an actual issue
func ReadSignatureDatabase(f io.Reader) (SignatureDatabase, error) {
	siglist := SignatureDatabase{}
	for {
		sig, err := ReadSignatureList(f)
		if err == io.EOF {
			break
		} else if err != nil {
			return siglist, errors.Wrapf(err, "failed to parse signature lists")
		}
		siglist = append(siglist, sig)
	}
	return siglist, nil
}

// Marshal implements efivar.Marshallable
func (sd *SignatureDatabase) Marshal(b *bytes.Buffer) {
	WriteSignatureDatabase(b, *sd)
}

// Unmarshal implements efivar.Unmarshallable
func (sd *SignatureDatabase) Unmarshal(b *bytes.Buffer) error {
	db, err := ReadSignatureDatabase(b)
	if err != nil {
		return err
	}
	*sd = db
	return nil
}
