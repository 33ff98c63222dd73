package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/report-discovery/internal/config"
)

// newInitConfigCmd creates the 'init-config' subcommand.
func newInitConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [PATH]",
		Short: "Write a configuration template with every default",
		Long: `Writes a YAML configuration file holding every key at its default value
(reportfinder.yaml unless PATH is given). Credentials are left as placeholders
and count as missing until they are replaced.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{bootstrapAnnotation: bootstrapNone},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "reportfinder.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", path, err)
				}
			}
			if err := config.WriteTemplate(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
