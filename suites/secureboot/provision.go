package secureboot

import (
	"time"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/foxboron/go-uefi-sct/efivarfs/testfs"
	"github.com/foxboron/go-uefi-sct/internal/keys"
)

// Enroll writes TestDB1, TestDBX1, TestKEK1 and finally TestPK1. The
// platform must be in setup mode.
func Enroll(vars efivarfs.VariableService, k *Keys) error {
	steps := []struct {
		v  efivar.Efivar
		kp *keys.KeyPair
	}{
		{efivar.Db, k.DB1},
		{efivar.Dbx, k.DBX1},
		{efivar.KEK, k.KEK1},
		{efivar.PK, k.PK},
	}
	for i, s := range steps {
		db, err := certDatabase(s.kp)
		if err != nil {
			return err
		}
		// Older than any fixture.
		t := epoch.Add(time.Duration(i-len(steps)) * time.Second)
		signed, err := sign(s.v, k.PK, db.Bytes(), t)
		if err != nil {
			return errors.Wrapf(err, "signing %s", s.v.Name)
		}
		if err := vars.SetVariable(s.v.Name, s.v.GUID, s.v.Attributes, signed); err != nil {
			return errors.Wrapf(err, "enrolling %s", s.v.Name)
		}
	}
	return nil
}

// Provision enrols the test keys into fs and reboots it, so SecureBoot
// reads 1 and SetupMode 0.
func Provision(fs *testfs.TestFS, k *Keys) error {
	if err := Enroll(fs, k); err != nil {
		return err
	}
	return fs.Reboot()
}
