package secureboot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxboron/go-uefi-sct/efi/signature"
	"github.com/foxboron/go-uefi-sct/efi/status"
	"github.com/foxboron/go-uefi-sct/efi/util"
	"github.com/foxboron/go-uefi-sct/efivar"
	"github.com/foxboron/go-uefi-sct/efivarfs"
	"github.com/foxboron/go-uefi-sct/efivarfs/testfs"
	sctassert "github.com/foxboron/go-uefi-sct/sct/assert"
	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/sct/fixture"
)

const fixtureDir = "/fixtures"

var (
	keysOnce sync.Once
	testKeys *Keys
	keysErr  error
)

func sharedKeys(t *testing.T) *Keys {
	t.Helper()
	keysOnce.Do(func() { testKeys, keysErr = NewKeys() })
	require.NoError(t, keysErr)
	return testKeys
}

type env struct {
	fs  *testfs.TestFS
	mem afero.Fs
	ctx *driver.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	k := sharedKeys(t)
	fs := testfs.NewTestFS()
	require.NoError(t, Provision(fs, k))
	mem := afero.NewMemMapFs()
	require.NoError(t, GenerateFixtures(mem, fixtureDir, k))
	ctx := driver.NewContext(context.Background(), nil).WithVariables(fs)
	ctx.Fixtures = fixture.NewStore(mem, fixtureDir)
	return &env{fs: fs, mem: mem, ctx: ctx}
}

func (e *env) certs(t *testing.T, v efivar.Efivar) []string {
	t.Helper()
	_, data, err := e.fs.GetVariable(v.Name, v.GUID)
	require.NoError(t, err)
	db, err := signature.ReadSignatureDatabase(bytes.NewReader(data))
	require.NoError(t, err)
	certs, err := db.Certificates()
	require.NoError(t, err)
	var names []string
	for _, c := range certs {
		names = append(names, c.Subject.CommonName)
	}
	return names
}

func TestProvision(t *testing.T) {
	e := newEnv(t)
	assert.False(t, e.fs.InSetupMode())
	_, sb, err := e.fs.GetVariable(efivar.SecureBoot.Name, efivar.SecureBoot.GUID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, sb)
	assert.Equal(t, []string{"TestPK1"}, e.certs(t, efivar.PK))
	assert.Equal(t, []string{"TestKEK1"}, e.certs(t, efivar.KEK))
	assert.Equal(t, []string{"TestDB1"}, e.certs(t, efivar.Db))
	assert.Equal(t, []string{"TestDBX1"}, e.certs(t, efivar.Dbx))
}

func TestVariableUpdates(t *testing.T) {
	e := newEnv(t)
	res, err := driver.Run(e.ctx, VariableUpdates())
	require.NoError(t, err)
	assert.Equal(t, driver.Done, res.State)
	require.Len(t, res.Records, 5)
	for _, r := range res.Records {
		assert.Equal(t, sctassert.Passed, r.Outcome, "%s: %s", r.Title, r.Message)
	}
	assert.Equal(t, "EFI_SECURITY_VIOLATION", res.Records[0].Context["status"])
	assert.Equal(t, "EFI_SUCCESS", res.Records[1].Context["status"])
	assert.Equal(t, "0x27", res.Records[2].Context["attributes"])

	// Cleanup puts the provisioned databases back.
	assert.Equal(t, []string{"TestKEK1"}, e.certs(t, efivar.KEK))
	assert.Equal(t, []string{"TestDB1"}, e.certs(t, efivar.Db))
	assert.Equal(t, []string{"TestDBX1"}, e.certs(t, efivar.Dbx))
}

func TestUnsignedUpdateAccepted(t *testing.T) {
	e := newEnv(t)
	// Without a PK nothing is verified, SecureBoot stays latched until the
	// next reboot.
	require.NoError(t, e.fs.RemoveEfivarsWithGuid(efivar.PK.Name, efivar.PK.GUID))
	res, err := driver.Run(e.ctx, VariableUpdates())
	require.NoError(t, err)
	require.Len(t, res.Records, 5)
	assert.Equal(t, sctassert.Failed, res.Records[0].Outcome)
	assert.Contains(t, res.Records[0].Message, "expected EFI_SECURITY_VIOLATION")
	assert.Equal(t, sctassert.Passed, res.Records[1].Outcome)
}

func TestSecureBootDisabled(t *testing.T) {
	fs := testfs.NewTestFS()
	ctx := driver.NewContext(context.Background(), nil).WithVariables(fs)
	res, err := driver.Run(ctx, VariableUpdates())
	require.Error(t, err)
	var se *driver.SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.NOT_FOUND, se.Status)
	assert.True(t, errors.Is(err, ErrNotEnabled))
	assert.Equal(t, driver.Aborted, res.State)
	assert.Empty(t, res.Records)
}

// immutableVars reports one variable as carrying the efivarfs immutable flag.
type immutableVars struct {
	*testfs.TestFS
	name string
}

func (v immutableVars) CheckWritable(name string, guid util.EFIGUID) error {
	if name == v.name {
		return efivarfs.ErrImmutable
	}
	return nil
}

func TestImmutableDatabaseIsSetupError(t *testing.T) {
	e := newEnv(t)
	e.ctx.WithVariables(immutableVars{e.fs, efivar.Db.Name})

	res, err := driver.Run(e.ctx, VariableUpdates())
	var se *driver.SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.WRITE_PROTECTED, se.Status)
	assert.True(t, errors.Is(err, efivarfs.ErrImmutable))
	assert.Contains(t, err.Error(), "--unset-immutable")
	assert.Equal(t, driver.Aborted, res.State)
	assert.Empty(t, res.Records)
	assert.Equal(t, []string{"TestKEK1"}, e.certs(t, efivar.KEK))
}

func TestMissingCheckpointFixture(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.mem.Remove(filepath.Join(fixtureDir, DBSigList2)))

	res, err := driver.Run(e.ctx, VariableUpdates())
	var se *driver.SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status.NOT_FOUND, se.Status)
	assert.Equal(t, driver.Aborted, res.State)
	assert.Len(t, res.Records, 4)

	// Restore still ran.
	assert.Equal(t, []string{"TestKEK1"}, e.certs(t, efivar.KEK))
	assert.Equal(t, []string{"TestDB1"}, e.certs(t, efivar.Db))
}

func TestMissingCleanupFixtureIsWarning(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.mem.Remove(filepath.Join(fixtureDir, TestKEK1)))
	// dbx is never modified, its restore verifies without the fixtures.
	require.NoError(t, e.mem.Remove(filepath.Join(fixtureDir, NullDBX)))
	require.NoError(t, e.mem.Remove(filepath.Join(fixtureDir, TestDBX1)))

	res, err := driver.Run(e.ctx, VariableUpdates())
	require.NoError(t, err)
	assert.Equal(t, driver.Done, res.State)
	require.Len(t, res.Records, 6)

	w := res.Records[5]
	assert.Equal(t, sctassert.Warning, w.Outcome)
	assert.Equal(t, "286e7f4e-0798-4984-ae1a-4d74de952e8e", w.ID.String())
	assert.Contains(t, w.Context["variable"], "KEK")
	assert.Contains(t, w.Message, TestKEK1)

	// NullKEK.auth still ran.
	_, _, err = e.fs.GetVariable(efivar.KEK.Name, efivar.KEK.GUID)
	assert.ErrorIs(t, err, status.NOT_FOUND)
	assert.Equal(t, []string{"TestDB1"}, e.certs(t, efivar.Db))
}

func TestFixturesRoundTripKeys(t *testing.T) {
	k := sharedKeys(t)
	mem := afero.NewMemMapFs()
	require.NoError(t, GenerateFixtures(mem, fixtureDir, k))
	for _, name := range []string{TestImage1, KEKSigList1, DBSigList1, DBSigList2, NullKEK, NullDB, NullDBX, TestKEK1, TestDB1, TestDBX1} {
		ok, err := afero.Exists(mem, filepath.Join(fixtureDir, name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	loaded, err := LoadKeys(mem, filepath.Join(fixtureDir, KeysDir))
	require.NoError(t, err)
	assert.True(t, loaded.KEK2.Cert.Equal(k.KEK2.Cert))
	assert.True(t, loaded.PK.Key.Equal(k.PK.Key))
}

func TestFixtureTimestampsIncrease(t *testing.T) {
	files, err := Fixtures(sharedKeys(t))
	require.NoError(t, err)
	var prev int64
	for _, u := range updates {
		efva, _, err := signature.ReadAuthenticatedPayload(files[u.name])
		require.NoError(t, err, u.name)
		ts := efva.Time.Time().Unix()
		assert.Greater(t, ts, prev, u.name)
		prev = ts
	}
}
