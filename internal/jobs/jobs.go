// Package jobs runs the periodic maintenance tasks inside the server
// process: expiring lapsed subscriptions and failing abandoned checkouts.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"graphiste/internal/metrics"
)

// Schedules, in robfig/cron descriptor syntax.
const (
	ExpirySchedule       = "@every 1h"
	StalePaymentSchedule = "@every 30m"
)

// StalePaymentAge is how long a checkout may stay pending before it is
// considered abandoned.
const StalePaymentAge = 24 * time.Hour

// runTimeout bounds a single job run.
const runTimeout = 2 * time.Minute

// Store is the persistence the jobs act on.
type Store interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	FailStalePayments(ctx context.Context, before time.Time) (int64, error)
}

// Runner owns the cron scheduler.
type Runner struct {
	store Store
	cron  *cron.Cron
	now   func() time.Time
}

// New creates a Runner. Jobs do not overlap: a run still in progress when
// its next tick arrives causes that tick to be skipped.
func New(st Store) *Runner {
	logger := cronLogger{}
	return &Runner{
		store: st,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(
				cron.Recover(logger),
				cron.SkipIfStillRunning(logger),
			),
		),
		now: time.Now,
	}
}

// cronLogger routes the scheduler's own messages, including recovered
// panics, to slog. A nil log means slog.Default().
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) logger() *slog.Logger {
	if l.log != nil {
		return l.log
	}
	return slog.Default()
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger().Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger().Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Start registers the jobs and starts the scheduler in its own goroutine.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(ExpirySchedule, func() { r.run("expire_subscriptions", r.ExpireSubscriptions) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(StalePaymentSchedule, func() { r.run("fail_stale_payments", r.FailStalePayments) }); err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("jobs scheduled", "expiry", ExpirySchedule, "stale_payments", StalePaymentSchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("jobs still running at shutdown")
	}
}

func (r *Runner) run(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	metrics.RecordJob(name, err)
	if err != nil {
		slog.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
	}
}

// ExpireSubscriptions marks subscriptions whose period has ended as expired.
func (r *Runner) ExpireSubscriptions(ctx context.Context) error {
	n, err := r.store.ExpireSubscriptions(ctx, r.now())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("subscriptions expired", "count", n)
	}
	return nil
}

// FailStalePayments fails checkouts pending for longer than StalePaymentAge.
func (r *Runner) FailStalePayments(ctx context.Context) error {
	n, err := r.store.FailStalePayments(ctx, r.now().Add(-StalePaymentAge))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("stale payments failed", "count", n)
	}
	return nil
}
