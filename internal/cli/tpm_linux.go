package cli

import (
	"github.com/foxboron/go-uefi-sct/tcg2"
	"github.com/foxboron/go-uefi-sct/tcg2/tpmdev"
)

func openTPM() (tcg2.Protocol, func() error, error) {
	d, err := tpmdev.Open()
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}
