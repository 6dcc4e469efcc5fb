package efivarfs

import (
	"crypto"
	"crypto/x509"

	"github.com/foxboron/go-uefi-sct/efi/signature"
	"github.com/foxboron/go-uefi-sct/efivar"
)

// This is the high-level abstraction of efivarfs. It gives you the easy
// variable access and auxillary functions you should expect from a library like
// this.

type Efivarfs struct {
	EFIVars
}

func Open(e EFIVars) *Efivarfs {
	return &Efivarfs{e}
}

func (e *Efivarfs) getdb(v efivar.Efivar) (*signature.SignatureDatabase, error) {
	var rsb signature.SignatureDatabase
	if err := e.GetVar(v, &rsb); err != nil {
		return nil, err
	}
	return &rsb, nil
}

func (e *Efivarfs) getbool(v efivar.Efivar) (bool, error) {
	var rsb efivar.Efibool
	if err := e.GetVar(v, &rsb); err != nil {
		return false, err
	}
	return bool(rsb), nil
}

func (e *Efivarfs) GetPK() (*signature.SignatureDatabase, error) {
	return e.getdb(efivar.PK)
}

func (e *Efivarfs) GetKEK() (*signature.SignatureDatabase, error) {
	return e.getdb(efivar.KEK)
}

func (e *Efivarfs) Getdb() (*signature.SignatureDatabase, error) {
	return e.getdb(efivar.Db)
}

func (e *Efivarfs) Getdbx() (*signature.SignatureDatabase, error) {
	return e.getdb(efivar.Dbx)
}

func (e *Efivarfs) GetSetupMode() (bool, error) {
	return e.getbool(efivar.SetupMode)
}

func (e *Efivarfs) GetSecureBoot() (bool, error) {
	return e.getbool(efivar.SecureBoot)
}

// Writes a signed variable update
func (e *Efivarfs) WriteSignedUpdate(v efivar.Efivar, m efivar.Marshallable, key crypto.Signer, cert *x509.Certificate) error {
	signed, err := signature.SignEFIVariable(&signature.EFIVariableSigningContext{
		Cert:    cert,
		Key:     key,
		Varname: v.Name,
		Guid:    v.GUID,
		Attr:    v.Attributes,
		Data:    m.Bytes(),
	})
	if err != nil {
		return err
	}
	return e.WriteVar(v, efivar.Bytes(signed))
}
