// Package sweep runs the periodic background passes: instance generation,
// waiting list escalation and expiry, reassignment timeouts and reservation
// completion. Every pass goes through the command bus so that it commits and
// publishes events exactly like a live request.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"slotkeeper/internal/app/commands"
	"slotkeeper/internal/app/dto"
	"slotkeeper/internal/app/handlers/booking"
	"slotkeeper/internal/app/handlers/reassignment"
	"slotkeeper/internal/app/handlers/series"
	"slotkeeper/internal/app/handlers/waitlist"
	"slotkeeper/internal/app/policies"
)

const (
	JobInstances    = "instances"
	JobWaitlist     = "waitlist"
	JobReassignment = "reassignment"
	JobCompletion   = "completion"
)

// Schedule holds one cron spec per job. An empty spec leaves the job off.
type Schedule struct {
	Instances    string
	Waitlist     string
	Reassignment string
	Completion   string
}

type Runner struct {
	bus     commands.Bus
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	jobs    []string
}

// NewRunner registers every scheduled job. Runs of the same job never overlap.
func NewRunner(bus commands.Bus, schedule Schedule, logger *slog.Logger) (*Runner, error) {
	if bus == nil {
		return nil, commands.ErrNilBus
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "sweep")}
	r := &Runner{
		bus:     bus,
		logger:  logger,
		timeout: 5 * time.Minute,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) ([]dto.SweepReport, error)
	}{
		{JobInstances, schedule.Instances, r.RunInstances},
		{JobWaitlist, schedule.Waitlist, r.RunWaitlist},
		{JobReassignment, schedule.Reassignment, r.RunReassignment},
		{JobCompletion, schedule.Completion, r.RunCompletion},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		run := job.run
		if _, err := r.cron.AddFunc(job.spec, func() { r.scheduled(run) }); err != nil {
			return nil, fmt.Errorf("sweep %s: %w", job.name, err)
		}
		r.jobs = append(r.jobs, job.name)
	}
	return r, nil
}

// Jobs lists the scheduled job names.
func (r *Runner) Jobs() []string {
	return append([]string(nil), r.jobs...)
}

func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("sweeps started", "jobs", r.jobs)
}

// Stop prevents new runs and waits for running ones or ctx, whichever is first.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("sweeps still running at shutdown")
	}
}

func (r *Runner) scheduled(run func(context.Context) ([]dto.SweepReport, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_, _ = run(ctx)
}

// RunInstances materializes series instances inside the horizon and completes
// finished series.
func (r *Runner) RunInstances(ctx context.Context) ([]dto.SweepReport, error) {
	return r.run(ctx, JobInstances, series.GenerateDueCommand{})
}

// RunWaitlist escalates waiting entries, lapses unanswered offers and expires
// entries past their deadline.
func (r *Runner) RunWaitlist(ctx context.Context) ([]dto.SweepReport, error) {
	return r.run(ctx, JobWaitlist,
		waitlist.EscalatePriorityCommand{},
		waitlist.LapseOffersCommand{},
		waitlist.ExpireStaleCommand{},
	)
}

// RunReassignment retries auto-approval of pending requests, then expires the
// overdue ones and applies the fallback.
func (r *Runner) RunReassignment(ctx context.Context) ([]dto.SweepReport, error) {
	return r.run(ctx, JobReassignment,
		reassignment.AutoProcessPendingCommand{},
		reassignment.ExpireOverdueCommand{},
	)
}

func (r *Runner) RunCompletion(ctx context.Context) ([]dto.SweepReport, error) {
	return r.run(ctx, JobCompletion, booking.CompleteEndedCommand{})
}

// run dispatches every step even when an earlier one fails.
func (r *Runner) run(ctx context.Context, job string, steps ...commands.Command) ([]dto.SweepReport, error) {
	ctx = policies.ContextWithIdentity(ctx, SystemIdentity)
	started := time.Now()
	reports := make([]dto.SweepReport, 0, len(steps))
	var errs []error
	changed, failed := 0, 0
	for _, step := range steps {
		report, err := commands.Dispatch[commands.Command, dto.SweepReport](ctx, r.bus, step)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Key(), err))
			r.logger.ErrorContext(ctx, "sweep step failed", "job", job, "step", step.Key(), "error", err)
			continue
		}
		changed += report.Changed
		failed += report.Failed
		reports = append(reports, report)
	}
	r.logger.InfoContext(ctx, "sweep run",
		"job", job,
		"steps", len(steps),
		"changed", changed,
		"failed", failed,
		"errors", len(errs),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return reports, errors.Join(errs...)
}

// SystemIdentity is attached to sweep commands.
var SystemIdentity = policies.Identity{ID: "system:sweep", Roles: []string{policies.RoleAdmin}}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
