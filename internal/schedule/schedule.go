// Package schedule re-runs a resumable job on a cron schedule until the job
// reports that nothing is left to do.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job runs one pass. done reports that no further passes are needed; an
// error returned together with done ends the schedule with that error.
type Job func(ctx context.Context) (done bool, err error)

// Status is the JSON view of the runner served on /status.
type Status struct {
	Spec       string    `json:"spec"`
	Runs       int       `json:"runs"`
	Running    bool      `json:"running"`
	Done       bool      `json:"done"`
	LastStart  time.Time `json:"last_start,omitzero"`
	LastFinish time.Time `json:"last_finish,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
	Next       time.Time `json:"next,omitzero"`
}

// Runner drives a Job from a cron schedule. Overlapping passes are skipped.
type Runner struct {
	spec      string
	schedule  cron.Schedule
	job       Job
	immediate bool
	logger    *zap.Logger

	mu     sync.Mutex
	status Status
	entry  cron.EntryID
	cron   *cron.Cron
}

// Option customises a Runner.
type Option func(*Runner)

// RunImmediately starts the first pass without waiting for the schedule.
func RunImmediately() Option {
	return func(r *Runner) { r.immediate = true }
}

// New parses a standard five-field cron spec (descriptors such as @daily are
// accepted).
func New(spec string, job Job, logger *zap.Logger, opts ...Option) (*Runner, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return NewWithSchedule(spec, sched, job, logger, opts...), nil
}

// NewWithSchedule builds a Runner over an already parsed schedule.
func NewWithSchedule(spec string, sched cron.Schedule, job Job, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		spec:     spec,
		schedule: sched,
		job:      job,
		logger:   logger,
		status:   Status{Spec: spec},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is canceled or a pass reports done. It waits for an
// in-flight pass to return before it does.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan error, 1)
	pass := func() {
		done, err := r.pass(ctx)
		if done {
			select {
			case finished <- err:
			default:
			}
		}
	}

	cl := cronLogger{r.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	r.mu.Lock()
	r.cron = c
	r.entry = c.Schedule(r.schedule, cron.FuncJob(pass))
	r.mu.Unlock()

	var immediate sync.WaitGroup
	if r.immediate {
		// through the wrapped entry so SkipIfStillRunning covers it
		wrapped := c.Entry(r.entry).WrappedJob
		immediate.Add(1)
		go func() {
			defer immediate.Done()
			wrapped.Run()
		}()
	}
	c.Start()
	r.logger.Info("schedule started", zap.String("spec", r.spec))

	var err error
	select {
	case <-ctx.Done():
	case err = <-finished:
	}
	cancel()
	<-c.Stop().Done()
	immediate.Wait()
	r.logger.Info("schedule stopped", zap.String("spec", r.spec))
	return err
}

func (r *Runner) pass(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	r.mu.Lock()
	r.status.Runs++
	r.status.Running = true
	r.status.LastStart = time.Now()
	run := r.status.Runs
	r.mu.Unlock()

	logger := r.logger.With(zap.Int("pass", run))
	logger.Info("scheduled pass started")
	done, err := r.job(ctx)

	r.mu.Lock()
	r.status.Running = false
	r.status.LastFinish = time.Now()
	r.status.Done = done
	r.status.LastError = ""
	if err != nil {
		r.status.LastError = err.Error()
	}
	r.mu.Unlock()

	switch {
	case err != nil && done:
		logger.Error("scheduled pass failed; stopping", zap.Error(err))
	case err != nil:
		logger.Warn("scheduled pass failed; will retry on schedule", zap.Error(err))
	case done:
		logger.Info("scheduled pass completed the work")
	default:
		logger.Info("scheduled pass finished; work remains")
	}
	return done, err
}

// Status returns a snapshot for reporting.
func (r *Runner) Status() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	if r.cron != nil && !s.Done {
		s.Next = r.cron.Entry(r.entry).Next
	}
	return s
}

type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
