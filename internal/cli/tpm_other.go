//go:build !linux

package cli

import (
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/tcg2"
)

func openTPM() (tcg2.Protocol, func() error, error) {
	return nil, nil, errors.New("TPM access is only implemented on linux")
}
