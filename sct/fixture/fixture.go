// Package fixture loads named binary fixtures from a base directory.
package fixture

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	ErrNotFound       = errors.New("fixture not found")
	ErrOutOfResources = errors.New("fixture exceeds the size limit")
	ErrIO             = errors.New("fixture read failed")
)

// DefaultMaxSize bounds a single fixture. Key database updates are far
// smaller.
const DefaultMaxSize = 16 << 20

type Fixture struct {
	Name string
	Data []byte
}

func (f Fixture) Size() int {
	return len(f.Data)
}

// Store resolves fixture names against a base directory. Loads are never
// cached, every call reads the backing filesystem again.
type Store struct {
	fs      afero.Fs
	base    string
	maxSize int64
}

type Option func(*Store)

func WithMaxSize(n int64) Option {
	return func(s *Store) { s.maxSize = n }
}

func NewStore(fs afero.Fs, base string, opts ...Option) *Store {
	s := &Store{fs: fs, base: base, maxSize: DefaultMaxSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) BaseDir() string {
	return s.base
}

// resolve keeps name inside the base directory. Backslashes are accepted
// so profile paths written for the firmware shell still work.
func (s *Store) resolve(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if clean == "/" {
		return "", errors.Wrapf(ErrNotFound, "%q", name)
	}
	return filepath.Join(s.base, filepath.FromSlash(clean)), nil
}

// Load reads the named fixture. Errors wrap ErrNotFound, ErrOutOfResources
// or ErrIO.
func (s *Store) Load(name string) (Fixture, error) {
	p, err := s.resolve(name)
	if err != nil {
		return Fixture{}, err
	}
	f, err := s.fs.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return Fixture{}, errors.Wrapf(ErrNotFound, "%s", name)
	} else if err != nil {
		return Fixture{}, errors.Wrapf(ErrIO, "%s: %v", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Fixture{}, errors.Wrapf(ErrIO, "%s: %v", name, err)
	}
	if info.IsDir() {
		return Fixture{}, errors.Wrapf(ErrNotFound, "%s is a directory", name)
	}
	if info.Size() > s.maxSize {
		return Fixture{}, errors.Wrapf(ErrOutOfResources, "%s is %d bytes, limit %d", name, info.Size(), s.maxSize)
	}
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return Fixture{}, errors.Wrapf(ErrIO, "%s: %v", name, err)
	}
	return Fixture{Name: name, Data: data}, nil
}
