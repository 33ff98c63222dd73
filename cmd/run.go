package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/report-discovery/internal/app"
	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/schedule"
	"github.com/JakeFAU/report-discovery/internal/server"
)

type runOptions struct {
	resume     bool
	schedule   string
	archiveDir string
}

// newRunCmd creates the 'run' subcommand.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run INPUT",
		Short: "Discover reports for every company in an input table",
		Long: `Reads the entity table INPUT (a NAME column and an optional ID column, any of
comma, semicolon, tab or pipe separated) and writes the output table, flushing
after each company. The run stops early when the daily quota is used up.

With --schedule the run is repeated on a cron schedule in resume mode until
every company has been written, and /metrics, /healthz and /status are served
on metrics.listen_addr in the meantime.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "skip companies already in the output table and append")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", `cron spec, e.g. "0 6 * * *" or "@daily"; implies --resume`)
	cmd.Flags().StringVar(&opts.archiveDir, "archive-dir", "", "keep a copy of every fetched page here")
	return cmd
}

func runRun(cmd *cobra.Command, input string, opts *runOptions) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	archiveDir := opts.archiveDir
	if archiveDir == "" {
		archiveDir = rt.cfg.Archive.Dir
	}
	out := cmd.OutOrStdout()
	runOpts := app.RunOptions{
		InputPath:  input,
		Resume:     opts.resume || opts.schedule != "",
		ArchiveDir: archiveDir,
		Report:     func(r discovery.EntityResult) { printEntityLine(out, r) },
	}

	if opts.schedule != "" {
		return runScheduled(cmd.Context(), rt, opts.schedule, runOpts, out)
	}

	res, err := rt.app.Run(cmd.Context(), runOpts)
	printTally(out, res)
	if errors.Is(err, context.Canceled) {
		rt.logger.Warn("run interrupted; rerun with --resume to continue")
		return nil
	}
	return err
}

// runScheduled drives resume passes from cron while the metrics server runs.
func runScheduled(ctx context.Context, rt *runtime, spec string, runOpts app.RunOptions, out io.Writer) error {
	job := func(ctx context.Context) (bool, error) {
		res, err := rt.app.Run(ctx, runOpts)
		printTally(out, res)
		switch {
		case errors.Is(err, context.Canceled):
			return false, nil
		case err != nil:
			// setup errors (missing input, unwritable output) will not fix themselves
			return true, err
		}
		return res.Done(), nil
	}
	runner, err := schedule.New(spec, job, rt.logger.Named("schedule"), schedule.RunImmediately())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	if addr := rt.cfg.Metrics.ListenAddr; addr != "" {
		srv := server.New(runner, rt.logger.Named("server"))
		g.Go(func() error { return srv.Run(serveCtx, addr) })
	}
	g.Go(func() error {
		defer stopServer()
		return runner.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	rt.logger.Info("scheduled run finished", zap.String("spec", spec))
	return nil
}

func printEntityLine(w io.Writer, r discovery.EntityResult) {
	if primary, ok := r.Primary(); ok {
		fmt.Fprintf(w, "found\t%s\t%s\t%s\n", r.Entity.Name, primary.URL, primary.Year)
		return
	}
	fmt.Fprintf(w, "not found\t%s\n", r.Entity.Name)
}

func printTally(w io.Writer, res app.Result) {
	fmt.Fprintf(w, "processed %d, with result %d, skipped %d, remaining %d; quota remaining %d\n",
		res.Processed, res.WithResult, res.Skipped, res.Unprocessed, res.QuotaRemaining)
	if res.QuotaExhausted {
		fmt.Fprintln(w, "daily quota exhausted; rerun with --resume tomorrow")
	}
}
