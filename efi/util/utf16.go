package util

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

var ErrNotNullTerminated = errors.New("utf16 string is not null terminated")

// ParseUtf16Var reads a null terminated UTF-16LE string from the buffer.
func ParseUtf16Var(data *bytes.Buffer) (string, error) {
	var raw []byte
	for {
		if data.Len() < 2 {
			return "", ErrNotNullTerminated
		}
		c := data.Next(2)
		if c[0] == 0 && c[1] == 0 {
			break
		}
		raw = append(raw, c...)
	}
	s, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid utf16 string")
	}
	return string(s), nil
}

// Utf16Encode encodes s as UTF-16LE without a terminator, the form used for
// variable names in authenticated payloads.
func Utf16Encode(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// The encoder replaces invalid runes rather than failing.
		return nil
	}
	return b
}
