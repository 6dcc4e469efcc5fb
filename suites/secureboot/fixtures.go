package secureboot

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/foxboron/go-uefi-sct/efi/signature"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/internal/keys"
	"github.com/foxboron/go-uefi-sct/tcg2/peimage"
)

// Fixture names.
const (
	TestImage1  = "TestImage1.bin"
	KEKSigList1 = "KEKSigList1.auth"
	DBSigList1  = "dbSigList1.auth"
	DBSigList2  = "dbSigList2.auth"
	NullKEK     = "NullKEK.auth"
	NullDB      = "NullDB.auth"
	NullDBX     = "NullDBX.auth"
	TestKEK1    = "TestKEK1.auth"
	TestDB1     = "TestDB1.auth"
	TestDBX1    = "TestDBX1.auth"
)

// KeysDir is where GenerateFixtures puts the PEM files, relative to the
// fixture directory.
const KeysDir = "keys"

// OwnerGUID owns every signature the fixtures enrol.
var OwnerGUID = util.MustGUID("e0a4c1f3-5b2d-4f7e-9a61-3c8d2b7f4e10")

// epoch is the timestamp of the first update. Every following update is a
// second later.
var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type update struct {
	name    string
	v       efivar.Efivar
	signer  func(*Keys) *keys.KeyPair
	content func(*Keys) []*keys.KeyPair
}

func pk(k *Keys) *keys.KeyPair   { return k.PK }
func kek1(k *Keys) *keys.KeyPair { return k.KEK1 }
func kek2(k *Keys) *keys.KeyPair { return k.KEK2 }

func empty(*Keys) []*keys.KeyPair { return nil }

// updates in the order they are applied by a run, checkpoints first and the
// cleanup replay of dbx, db and KEK last.
var updates = []update{
	{KEKSigList1, efivar.KEK, pk, func(k *Keys) []*keys.KeyPair { return []*keys.KeyPair{k.KEK1, k.KEK2} }},
	{DBSigList1, efivar.Db, kek1, func(k *Keys) []*keys.KeyPair { return []*keys.KeyPair{k.DB2} }},
	{DBSigList2, efivar.Db, kek2, func(k *Keys) []*keys.KeyPair { return []*keys.KeyPair{k.DB3} }},
	{NullDBX, efivar.Dbx, kek1, empty},
	{TestDBX1, efivar.Dbx, kek1, func(k *Keys) []*keys.KeyPair { return []*keys.KeyPair{k.DBX1} }},
	{NullDB, efivar.Db, kek1, empty},
	{TestDB1, efivar.Db, kek1, func(k *Keys) []*keys.KeyPair { return []*keys.KeyPair{k.DB1} }},
	{NullKEK, efivar.KEK, pk, empty},
	{TestKEK1, efivar.KEK, pk, func(k *Keys) []*keys.KeyPair { return []*keys.KeyPair{k.KEK1} }},
}

// certDatabase lists the certificates of kps, all owned by OwnerGUID.
func certDatabase(kps ...*keys.KeyPair) (signature.SignatureDatabase, error) {
	db := signature.SignatureDatabase{}
	for _, kp := range kps {
		if err := db.Append(signature.CERT_X509_GUID, OwnerGUID, kp.Cert.Raw); err != nil {
			return nil, errors.Wrapf(err, "adding %s", kp.Name)
		}
	}
	return db, nil
}

func sign(v efivar.Efivar, signer *keys.KeyPair, data []byte, t time.Time) ([]byte, error) {
	return signature.SignEFIVariable(&signature.EFIVariableSigningContext{
		Cert:    signer.Cert,
		Key:     signer.Key,
		Varname: v.Name,
		Attr:    v.Attributes,
		Guid:    v.GUID,
		Data:    data,
		Time:    util.EFITimeFrom(t),
	})
}

// Fixtures builds the content of every fixture file.
func Fixtures(k *Keys) (map[string][]byte, error) {
	files := map[string][]byte{
		TestImage1: peimage.Build([]byte("go-uefi-sct TestImage1")),
	}
	for i, u := range updates {
		db, err := certDatabase(u.content(k)...)
		if err != nil {
			return nil, err
		}
		signed, err := sign(u.v, u.signer(k), db.Bytes(), epoch.Add(time.Duration(i)*time.Second))
		if err != nil {
			return nil, errors.Wrapf(err, "signing %s", u.name)
		}
		files[u.name] = signed
	}
	return files, nil
}

// GenerateFixtures writes the fixtures into dir and the key pairs into
// dir/keys.
func GenerateFixtures(fs afero.Fs, dir string, k *Keys) error {
	files, err := Fixtures(k)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	for name, data := range files {
		if err := afero.WriteFile(fs, filepath.Join(dir, name), data, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}
	return k.Write(fs, filepath.Join(dir, KeysDir))
}
