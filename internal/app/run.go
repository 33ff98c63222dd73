package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/table"
)

// RunOptions describes one pass over an entity table.
type RunOptions struct {
	InputPath string
	// OutputPath defaults to output_path from the configuration.
	OutputPath string
	// Resume skips entities already in the output table and appends.
	Resume     bool
	ArchiveDir string
	// Report is called after each entity's rows are written.
	Report func(discovery.EntityResult)
}

// Result is the end-of-run tally.
type Result struct {
	discovery.RunSummary
	Total          int
	QuotaRemaining int
}

// Done reports whether every entity in the input has been written.
func (r Result) Done() bool {
	return !r.QuotaExhausted && r.Unprocessed == 0
}

// Run processes the entity table. Rows are flushed after each entity; on
// cancellation the in-flight entity is written before Run returns the
// context error.
func (a *App) Run(ctx context.Context, opts RunOptions) (Result, error) {
	var res Result
	inDelim, err := table.ParseDelimiter(a.cfg.Input.Delimiter)
	if err != nil {
		return res, err
	}
	entities, err := table.ReadEntitiesFile(opts.InputPath, inDelim)
	if err != nil {
		return res, err
	}
	res.Total = len(entities)

	output := opts.OutputPath
	if output == "" {
		output = a.cfg.OutputPath
	}
	skip := map[string]struct{}{}
	if opts.Resume {
		outDelim, err := table.ParseDelimiter(a.cfg.Output.Delimiter)
		if err != nil {
			return res, err
		}
		if skip, err = table.Completed(output, outDelim); err != nil {
			return res, err
		}
	}

	logger := a.logger.With(zap.String("input", opts.InputPath), zap.String("output", output))
	logger.Info("run started",
		zap.Int("entities", len(entities)),
		zap.Int("already_done", len(skip)),
		zap.Bool("resume", opts.Resume),
	)

	sink, err := a.OpenSink(ctx, output, opts.Resume)
	if err != nil {
		return res, err
	}
	pipeline, err := a.Pipeline(sink, opts.ArchiveDir)
	if err != nil {
		_ = sink.Close()
		return res, err
	}

	summary, runErr := pipeline.Run(ctx, entities, skip, opts.Report)
	res.RunSummary = summary
	if err := sink.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close output: %w", err))
	}

	remaining, qErr := a.QuotaRemaining(context.WithoutCancel(ctx))
	if qErr != nil {
		logger.Warn("could not read remaining quota", zap.Error(qErr))
	}
	if summary.QuotaExhausted {
		remaining = 0
	}
	res.QuotaRemaining = remaining
	if err := a.WriteMetrics(); err != nil {
		logger.Warn("could not export metrics", zap.Error(err))
	}

	logger.Info("run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("with_result", summary.WithResult),
		zap.Int("skipped", summary.Skipped),
		zap.Int("unprocessed", summary.Unprocessed),
		zap.Bool("quota_exhausted", summary.QuotaExhausted),
		zap.Int("quota_remaining", remaining),
	)
	return res, runErr
}

// Entity runs a single named entity without writing any output.
func (a *App) Entity(ctx context.Context, e discovery.Entity, archiveDir string) (discovery.EntityResult, error) {
	pipeline, err := a.Pipeline(nil, archiveDir)
	if err != nil {
		return discovery.EntityResult{}, err
	}
	res := pipeline.ProcessEntity(ctx, e)
	if _, err := a.QuotaRemaining(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("could not read remaining quota", zap.Error(err))
	}
	if err := a.WriteMetrics(); err != nil {
		a.logger.Warn("could not export metrics", zap.Error(err))
	}
	if err := res.Err(); errors.Is(err, discovery.ErrQuotaExhausted) {
		return res, err
	}
	return res, nil
}
