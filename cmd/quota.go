package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newQuotaCmd creates the 'quota' subcommand.
func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Print today's remaining search requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			remaining, err := rt.app.QuotaRemaining(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d\n", remaining, rt.cfg.DailyRequestLimit)
			return nil
		},
	}
}
