package plan

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxboron/go-uefi-sct/sct/driver"
)

func TestParse(t *testing.T) {
	p, err := Parse([]byte(`
name: nightly
level: Exhaustive
tests:
  - tcg2
  - SecureBoot.VariableUpdates
`))
	require.NoError(t, err)
	assert.Equal(t, "nightly", p.Name)
	assert.Equal(t, []string{"tcg2", "SecureBoot.VariableUpdates"}, p.Tests)
	assert.Equal(t, driver.LevelExhaustive, p.RunLevel(driver.LevelMinimal))
}

func TestParseDefaultLevel(t *testing.T) {
	p, err := Parse([]byte("tests: [tcg2]\n"))
	require.NoError(t, err)
	assert.Equal(t, driver.LevelMinimal, p.RunLevel(driver.LevelMinimal))
}

func TestParseErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		msg  string
		line int
	}{
		{"empty", "", "empty plan", 0},
		{"syntax", "tests: [tcg2\n", "failed to parse YAML", 0},
		{"unknown key", "tests: [tcg2]\nlevels: default\n", "invalid plan", 0},
		{"no tests", "name: x\ntests: []\n", "plan must name at least one test", 2},
		{"bad level", "tests: [tcg2]\nlevel: thorough\n", "invalid level", 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, tt.msg, le.Message)
			assert.Equal(t, tt.line, le.Line)
		})
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/plans/sb.yaml", []byte("tests: [secureboot]\nfixtures: sb\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/plans/bad.yaml", []byte("level: nope\ntests: [x]\n"), 0o644))

	p, err := Load(fs, "/plans/sb.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/plans/sb", p.Fixtures)

	_, err = Load(fs, "/plans/bad.yaml")
	assert.EqualError(t, err, `/plans/bad.yaml:1: invalid level: unknown test level "nope"`)

	_, err = Load(fs, "/plans/missing.yaml")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "failed to read file", le.Message)
}
