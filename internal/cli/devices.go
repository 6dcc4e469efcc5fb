package cli

import (
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/foxboron/go-uefi-sct/efivarfs/testfs"
	"github.com/foxboron/go-uefi-sct/internal/config"
	"github.com/foxboron/go-uefi-sct/suites/secureboot"
	"github.com/foxboron/go-uefi-sct/tcg2"
	"github.com/foxboron/go-uefi-sct/tcg2/tcg2test"
)

type devices struct {
	vars    efivarfs.VariableService
	tcg2    tcg2.Protocol
	closers []func() error
}

func (d *devices) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *app) openDevices(cfg *config.Config, fixtureDir string, logger *slog.Logger) (*devices, error) {
	d := &devices{}
	switch cfg.Device.Variables {
	case config.Efivarfs:
		fs := efivarfs.NewFS().CheckImmutable()
		if cfg.Efivarfs.UnsetImmutable {
			fs.UnsetImmutable()
		}
		d.vars = fs
	case config.Simulator:
		// The simulated platform is enrolled with the fixture keys so the
		// signed fixtures apply to it.
		dir := filepath.Join(fixtureDir, secureboot.KeysDir)
		k, err := secureboot.LoadKeys(a.fs, dir)
		if err != nil {
			return nil, errors.Wrap(err, "simulated variables need generated fixtures")
		}
		fs := testfs.NewTestFS()
		if err := secureboot.Provision(fs, k); err != nil {
			return nil, errors.Wrap(err, "provisioning simulated variables")
		}
		d.vars = fs
	}
	logger.Debug("variable services", "device", cfg.Device.Variables)

	switch cfg.Device.TCG2 {
	case config.TPM:
		p, closer, err := openTPM()
		if err != nil {
			// Not every machine has a TPM, the TCG2 test cases report it.
			logger.Warn("TCG2 device unavailable", "err", err)
			break
		}
		d.tcg2 = p
		d.closers = append(d.closers, closer)
	case config.Simulator:
		d.tcg2 = tcg2test.New()
	}
	logger.Debug("TCG2 device", "device", cfg.Device.TCG2, "available", d.tcg2 != nil)
	return d, nil
}
