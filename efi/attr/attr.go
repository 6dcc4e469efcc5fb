package attr

import (
	"errors"
	"os"
)

// FS_IMMUTABLE_FL from linux/fs.h
const immutableFlag = 0x00000010

var ErrIsImmutable = errors.New("file is immutable")

// IsImmutable returns ErrIsImmutable when the immutable flag is set on the
// efivarfs file.
func IsImmutable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	attr, err := GetAttrFromFile(f)
	if err != nil {
		return err
	}
	if attr&immutableFlag != 0 {
		return ErrIsImmutable
	}
	return nil
}

// UnsetImmutable clears the immutable flag kernels set on new efivarfs files.
func UnsetImmutable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	attr, err := GetAttrFromFile(f)
	if err != nil {
		return err
	}
	return SetAttrOnFile(f, attr&^immutableFlag)
}
