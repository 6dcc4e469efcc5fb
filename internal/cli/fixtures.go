package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxboron/go-uefi-sct/suites/secureboot"
)

func (a *app) fixturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Manage test fixtures",
	}
	var reuse bool
	gen := &cobra.Command{
		Use:   "generate <dir>",
		Short: "Generate the secure boot fixtures and their signing keys",
		Long: `Generate writes the signed key database updates and the unsigned test
image the secure boot test cases replay, together with the keys they are
signed with in <dir>/keys. The platform under test must have TestPK1,
TestKEK1, TestDB1 and TestDBX1 enrolled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			var (
				k   *secureboot.Keys
				err error
			)
			if reuse {
				k, err = secureboot.LoadKeys(a.fs, filepath.Join(dir, secureboot.KeysDir))
			} else {
				k, err = secureboot.NewKeys()
			}
			if err != nil {
				return err
			}
			if err := secureboot.GenerateFixtures(a.fs, dir, k); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "fixtures written to %s\n", dir)
			return nil
		},
	}
	gen.Flags().BoolVar(&reuse, "reuse-keys", false, "sign with the keys already in <dir>/keys")
	cmd.AddCommand(gen)
	return cmd
}
