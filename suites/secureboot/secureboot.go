// Package secureboot holds the test cases for authenticated updates of the
// secure boot key databases, and the fixtures they replay.
package secureboot

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/foxboron/go-uefi-sct/efi/attributes"
	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/sct/snapshot"
)

var ErrNotEnabled = errors.New("SecureBoot not enabled")

func TestCases() []*driver.TestCase {
	return []*driver.TestCase{
		VariableUpdates(),
	}
}

func secureBootEnabled(ctx *driver.Context) error {
	if ctx.Variables == nil {
		return driver.Setup(status.UNSUPPORTED, errors.New("no runtime variable services"))
	}
	_, data, err := ctx.Variables.GetVariable(efivar.SecureBoot.Name, efivar.SecureBoot.GUID)
	if err != nil || len(data) == 0 || data[0] != 1 {
		return driver.Setup(status.NOT_FOUND, ErrNotEnabled)
	}
	return databasesWritable(ctx)
}

// databasesWritable catches variables the host refuses to write, such as
// efivarfs files still carrying the immutable flag.
func databasesWritable(ctx *driver.Context) error {
	wc, ok := ctx.Variables.(efivarfs.WriteChecker)
	if !ok {
		return nil
	}
	for _, v := range []efivar.Efivar{efivar.KEK, efivar.Db, efivar.Dbx} {
		err := wc.CheckWritable(v.Name, v.GUID)
		switch {
		case err == nil:
		case errors.Is(err, efivarfs.ErrImmutable):
			return driver.Setup(status.WRITE_PROTECTED,
				errors.Wrapf(err, "%s is immutable, rerun with --unset-immutable", v.Name))
		default:
			return driver.Setup(status.DEVICE_ERROR, errors.Wrapf(err, "checking %s", v.Name))
		}
	}
	return nil
}

// attrsOf returns the attributes the variable is defined with.
func attrsOf(v efivar.Efivar) func(*driver.Context) (attributes.Attributes, error) {
	return func(*driver.Context) (attributes.Attributes, error) {
		return v.Attributes, nil
	}
}

// currentAttrs reads the attributes of the variable as stored.
func currentAttrs(v efivar.Efivar) func(*driver.Context) (attributes.Attributes, error) {
	return func(ctx *driver.Context) (attributes.Attributes, error) {
		attrs, _, err := ctx.Variables.GetVariable(v.Name, v.GUID)
		return attrs, err
	}
}

// writeFixture writes the fixture name into v as a SetVariable payload.
func writeFixture(v efivar.Efivar, name string, attrs func(*driver.Context) (attributes.Attributes, error)) func(*driver.Context) (*driver.Observation, error) {
	return func(ctx *driver.Context) (*driver.Observation, error) {
		data, err := ctx.LoadFixture(name)
		if err != nil {
			return nil, err
		}
		a, err := attrs(ctx)
		if err != nil {
			return driver.Observe(err).With("call", "GetVariable").With("variable", v.Name), nil
		}
		err = ctx.Variables.SetVariable(v.Name, v.GUID, a, data)
		return driver.Observe(err).
			With("variable", v.Name).
			With("fixture", name).
			With("attributes", fmt.Sprintf("%#x", uint32(a))), nil
	}
}

// replay restores a key database by applying the signed fixtures in order.
// Every step runs, the first failure is returned.
func replay(names ...string) driver.RestoreFunc {
	return func(ctx *driver.Context, s *snapshot.Snapshot) error {
		var first error
		for _, name := range names {
			err := replayOne(ctx, s.Var, name)
			if err == nil {
				continue
			}
			ctx.Logger.Warn("cleanup step failed", "var", s.Var.Name, "fixture", name, "err", err)
			if first == nil {
				first = err
			}
		}
		return first
	}
}

func replayOne(ctx *driver.Context, v efivar.Efivar, name string) error {
	data, err := ctx.LoadFixture(name)
	if err != nil {
		return err
	}
	return errors.Wrapf(ctx.Variables.SetVariable(v.Name, v.GUID, v.Attributes, data), "applying %s", name)
}

// VariableUpdates checks that KEK and db only accept updates signed by the
// PK or an enrolled KEK.
func VariableUpdates() *driver.TestCase {
	return &driver.TestCase{
		Name:         "SecureBoot.VariableUpdates",
		GUID:         uuid.MustParse("cbada58e-a1aa-45df-bddf-f9ba1292f887"),
		Description:  "Authenticated writes to KEK and db",
		Precondition: secureBootEnabled,
		Snapshot: []snapshot.Item{
			{Var: efivar.KEK},
			{Var: efivar.Db},
			{Var: efivar.Dbx},
		},
		Restorers: map[efivar.Efivar]driver.RestoreFunc{
			efivar.KEK: replay(NullKEK, TestKEK1),
			efivar.Db:  replay(NullDB, TestDB1),
			efivar.Dbx: replay(NullDBX, TestDBX1),
		},
		RestoreID: uuid.MustParse("286e7f4e-0798-4984-ae1a-4d74de952e8e"),
		Checkpoints: []driver.Checkpoint{
			driver.NewCheckpoint("f2df4c88-bcb0-400e-821f-7dbd34bc571d",
				"SetVariable - unsigned KEK update returns EFI_SECURITY_VIOLATION",
				writeFixture(efivar.KEK, TestImage1, attrsOf(efivar.KEK)),
				driver.ExpectStatus(status.SECURITY_VIOLATION)),
			driver.NewCheckpoint("772e6853-89b9-4b50-92d4-27eef878082a",
				"SetVariable - KEK update signed by the PK succeeds",
				writeFixture(efivar.KEK, KEKSigList1, attrsOf(efivar.KEK)),
				driver.ExpectStatus(status.SUCCESS)),
			driver.NewCheckpoint("8d7f30c8-93de-446d-ac1d-1028c4e4ad19",
				"SetVariable - unsigned db update returns EFI_SECURITY_VIOLATION",
				writeFixture(efivar.Db, TestImage1, currentAttrs(efivar.Db)),
				driver.ExpectStatus(status.SECURITY_VIOLATION)),
			driver.NewCheckpoint("c7040526-6e18-4d81-9276-19a9d804a916",
				"SetVariable - db update signed by TestKEK1 succeeds",
				writeFixture(efivar.Db, DBSigList1, currentAttrs(efivar.Db)),
				driver.ExpectStatus(status.SUCCESS)),
			driver.NewCheckpoint("8b816b9c-f2ae-4180-8a77-aae2a2af8a47",
				"SetVariable - db update signed by a newly enrolled KEK succeeds",
				writeFixture(efivar.Db, DBSigList2, currentAttrs(efivar.Db)),
				driver.ExpectStatus(status.SUCCESS)),
		},
	}
}
