package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxboron/go-uefi-sct/suites"
)

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [suite|test...]",
		Short: "List test cases with their checkpoints and assertion identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := suites.Select(args...)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, tc := range cases {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", tc.Name, tc.GUID, tc.Description)
				for _, cp := range tc.Checkpoints {
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", cp.Level, cp.ID, cp.Title)
				}
			}
			return tw.Flush()
		},
	}
}
