package cli

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	var out, errb bytes.Buffer
	root := NewRootCommand(fs, &out, &errb)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "list", "secureboot")
	require.NoError(t, err)
	assert.Contains(t, out, "SecureBoot.VariableUpdates")
	assert.Contains(t, out, "f2df4c88-bcb0-400e-821f-7dbd34bc571d")
	assert.NotContains(t, out, "TCG2")

	_, err = execute(t, afero.NewMemMapFs(), "list", "nope")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gosct version dev")
}

func TestRunSimulated(t *testing.T) {
	fs := afero.NewMemMapFs()
	out, err := execute(t, fs, "fixtures", "generate", "/fx")
	require.NoError(t, err)
	assert.Contains(t, out, "fixtures written to /fx")

	out, err = execute(t, fs, "run", "--fixtures", "/fx", "--variables", "sim", "--tcg2", "sim")
	require.NoError(t, err)
	assert.Contains(t, out, "SecureBoot.VariableUpdates")
	assert.Contains(t, out, "0 failed, 0 warnings, 0 aborted")

	// Regenerating with the same keys keeps the enrolled platform usable.
	_, err = execute(t, fs, "fixtures", "generate", "--reuse-keys", "/fx")
	require.NoError(t, err)
	_, err = execute(t, fs, "run", "--fixtures", "/fx", "--variables", "sim", "--tcg2", "none", "secureboot")
	require.NoError(t, err)
}

func TestRunWithoutFixtures(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "run", "--fixtures", "/empty", "--variables", "sim")
	assert.ErrorContains(t, err, "simulated variables need generated fixtures")
}

func TestRunWithoutTCG2Fails(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "run", "--tcg2", "none", "tcg2.GetCapability")
	assert.ErrorIs(t, err, ErrFailed)
}

func TestRunPlan(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/plans/tcg2.yaml", []byte("name: tcg2\nlevel: minimal\ntests: [tcg2]\n"), 0o644))

	_, err := execute(t, fs, "run", "--plan", "/plans/tcg2.yaml", "--tcg2", "sim", "--format", "junit", "-o", "/report.xml")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/report.xml")
	require.NoError(t, err)
	var doc struct {
		Tests    int `xml:"tests,attr"`
		Failures int `xml:"failures,attr"`
		Suites   []struct {
			Skipped int `xml:"skipped,attr"`
		} `xml:"testsuite"`
	}
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Zero(t, doc.Failures)
	require.Len(t, doc.Suites, 4)
	// HashLogExtendEvent has two checkpoints above minimal.
	assert.Equal(t, 2, doc.Suites[2].Skipped)
}
