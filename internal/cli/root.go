// Package cli implements the gosct command line.
package cli

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foxboron/go-uefi-sct/internal/config"
)

// ErrFailed is returned by run when an assertion failed or a test case
// could not be carried out.
var ErrFailed = errors.New("conformance failures")

type app struct {
	fs         afero.Fs
	v          *viper.Viper
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

func (a *app) config() (*config.Config, error) {
	return config.Load(a.v, a.configFile)
}

// NewRootCommand builds the command tree. Files are read from and written
// to fs.
func NewRootCommand(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		fs:     fs,
		v:      config.New(fs),
		stdout: stdout,
		stderr: stderr,
	}
	root := &cobra.Command{
		Use:   "gosct",
		Short: "Conformance tests for TCG2 and secure boot firmware interfaces",
		Long: `gosct runs conformance test cases against the TCG2 protocol and the
runtime variable services that enforce secure boot.

Devices:
  - efivarfs: the variable services of the running system
  - tpm:      the TPM and event log of the running system
  - sim:      in-memory reference devices`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file")
	pf.String("log-format", "text", "log format (text, json)")
	pf.BoolP("verbose", "v", false, "debug logging and one line per assertion")
	pf.String("fixtures", "", "fixture directory")
	a.v.BindPFlag("log.format", pf.Lookup("log-format"))
	a.v.BindPFlag("log.verbose", pf.Lookup("verbose"))
	a.v.BindPFlag("fixture_dir", pf.Lookup("fixtures"))

	root.AddCommand(
		a.runCommand(),
		a.listCommand(),
		a.fixturesCommand(),
		versionCommand(),
	)
	return root
}

// Execute runs gosct against the host filesystem.
func Execute() error {
	return NewRootCommand(afero.NewOsFs(), os.Stdout, os.Stderr).Execute()
}
