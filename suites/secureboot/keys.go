package secureboot

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/foxboron/go-uefi-sct/internal/keys"
)

// Keys are the key pairs the signed fixtures are built from. Every pair is
// self-signed.
type Keys struct {
	PK   *keys.KeyPair
	KEK1 *keys.KeyPair
	KEK2 *keys.KeyPair
	DB1  *keys.KeyPair
	DB2  *keys.KeyPair
	DB3  *keys.KeyPair
	DBX1 *keys.KeyPair
}

type slot struct {
	name string
	kp   **keys.KeyPair
}

func (k *Keys) slots() []slot {
	return []slot{
		{"TestPK1", &k.PK},
		{"TestKEK1", &k.KEK1},
		{"TestKEK2", &k.KEK2},
		{"TestDB1", &k.DB1},
		{"TestDB2", &k.DB2},
		{"TestDB3", &k.DB3},
		{"TestDBX1", &k.DBX1},
	}
}

func NewKeys() (*Keys, error) {
	k := &Keys{}
	for _, s := range k.slots() {
		kp, err := keys.New(s.name, nil)
		if err != nil {
			return nil, err
		}
		*s.kp = kp
	}
	return k, nil
}

// Write stores every pair as <name>.key and <name>.crt in dir.
func (k *Keys) Write(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	for _, s := range k.slots() {
		key, cert, err := (*s.kp).PEM()
		if err != nil {
			return errors.Wrapf(err, "encoding %s", s.name)
		}
		if err := afero.WriteFile(fs, filepath.Join(dir, s.name+".key"), key, 0o600); err != nil {
			return err
		}
		if err := afero.WriteFile(fs, filepath.Join(dir, s.name+".crt"), cert, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// LoadKeys reads the pairs written by Write.
func LoadKeys(fs afero.Fs, dir string) (*Keys, error) {
	k := &Keys{}
	for _, s := range k.slots() {
		key, err := afero.ReadFile(fs, filepath.Join(dir, s.name+".key"))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s key", s.name)
		}
		cert, err := afero.ReadFile(fs, filepath.Join(dir, s.name+".crt"))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s certificate", s.name)
		}
		kp, err := keys.Parse(s.name, key, cert)
		if err != nil {
			return nil, err
		}
		*s.kp = kp
	}
	return k, nil
}
