package config

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/sct/fixture"
	"github.com/foxboron/go-uefi-sct/sct/report"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New(afero.NewMemMapFs()), "")
	require.NoError(t, err)
	assert.Equal(t, driver.LevelDefault, c.RunLevel())
	assert.Equal(t, report.Text, c.ReportFormat())
	assert.Equal(t, Efivarfs, c.Device.Variables)
	assert.Equal(t, TPM, c.Device.TCG2)
	assert.Equal(t, int64(fixture.DefaultMaxSize), c.MaxFixtureSize)
	assert.False(t, c.Efivarfs.UnsetImmutable)
}

func TestFileAndEnvironment(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/gosct.yaml", []byte(`
fixture_dir: /srv/fixtures
level: exhaustive
device:
  variables: sim
  tcg2: sim
report:
  format: junit
efivarfs:
  unset_immutable: true
`), 0o644))
	t.Setenv("GOSCT_REPORT_FORMAT", "json")
	t.Setenv("GOSCT_LOG_VERBOSE", "true")

	c, err := Load(New(fs), "/etc/gosct.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/srv/fixtures", c.FixtureDir)
	assert.Equal(t, driver.LevelExhaustive, c.RunLevel())
	assert.Equal(t, Simulator, c.Device.Variables)
	assert.Equal(t, report.JSON, c.ReportFormat())
	assert.True(t, c.Log.Verbose)
	assert.True(t, c.Efivarfs.UnsetImmutable)
}

func TestInvalid(t *testing.T) {
	for key, val := range map[string]string{
		"GOSCT_LEVEL":            "thorough",
		"GOSCT_DEVICE_VARIABLES": "uefi",
		"GOSCT_DEVICE_TCG2":      "swtpm",
		"GOSCT_REPORT_FORMAT":    "html",
		"GOSCT_LOG_FORMAT":       "logfmt",
		"GOSCT_MAX_FIXTURE_SIZE": "0",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load(New(afero.NewMemMapFs()), "")
			assert.Error(t, err)
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(New(afero.NewMemMapFs()), "/nope.yaml")
	assert.ErrorContains(t, err, "reading config /nope.yaml")
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	c := &Config{Log: Log{Format: "json", Verbose: true}}
	c.Logger(&buf).Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	c.Log = Log{Format: "text"}
	c.Logger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
