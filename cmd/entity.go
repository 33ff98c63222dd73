package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

type entityOptions struct {
	id         string
	archiveDir string
}

// newEntityCmd creates the 'entity' debugging subcommand.
func newEntityCmd() *cobra.Command {
	opts := &entityOptions{}
	cmd := &cobra.Command{
		Use:   "entity NAME",
		Short: "Run discovery for one company and print every ranked candidate",
		Long: `Runs the full search, fetch, extract and rank sequence for a single company
and prints each ranked candidate with its score, year and the step that found
it. Nothing is written to the output table; search requests still count
against the daily quota.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			archiveDir := opts.archiveDir
			if archiveDir == "" {
				archiveDir = rt.cfg.Archive.Dir
			}
			e := discovery.Entity{ID: opts.id, Name: strings.Join(args, " ")}
			res, err := rt.app.Entity(cmd.Context(), e, archiveDir)
			if err != nil {
				return err
			}
			return printRanked(cmd, res)
		},
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "entity ID to carry into log lines")
	cmd.Flags().StringVar(&opts.archiveDir, "archive-dir", "", "keep a copy of every fetched page here")
	return cmd
}

func printRanked(cmd *cobra.Command, res discovery.EntityResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (query %q, %d pages visited)\n",
		res.Entity.Name, res.Outcome, res.Query.Text, res.PagesVisited)
	if len(res.Ranked) == 0 {
		fmt.Fprintln(out, "no candidates found")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTIER\tSCORE\tYEAR\tSTEP\tURL")
	for _, r := range res.Ranked {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.Rank, r.Tier, r.Score, r.Year, r.Step, r.URL)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("print candidates: %w", err)
	}
	return nil
}
