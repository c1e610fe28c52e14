package jobs

import (
	"context"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/robfig/cron/v3"
)

const (
	Billing = "billing"
	Sweep   = "reservation-sweep"
)

// Locker is a cross-instance mutex with expiry, e.g. redisx.Lease.
type Locker interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

// Runner runs named jobs at most once at a time across instances. A nil
// Locker runs every call.
type Runner struct {
	locker Locker
	ttl    time.Duration
	log    *logger.Logger
}

func NewRunner(locker Locker, ttl time.Duration, log *logger.Logger) *Runner {
	return &Runner{locker: locker, ttl: ttl, log: log}
}

// Run reports false without calling fn when another instance holds the job.
func (r *Runner) Run(ctx context.Context, job string, fn func(ctx context.Context) error) (bool, error) {
	if r.locker != nil {
		ok, err := r.locker.Acquire(ctx, job, r.ttl)
		if err != nil {
			return false, err
		}
		if !ok {
			r.log.Debugw("job held by another instance", "job", job)
			return false, nil
		}
		defer func() {
			// release even when ctx is already cancelled
			if err := r.locker.Release(context.Background(), job); err != nil {
				r.log.Warnw("job lease release failed", "job", job, "error", err)
			}
		}()
	}

	start := time.Now()
	err := fn(ctx)
	log := r.log.With("job", job, "duration", time.Since(start).String())
	if err != nil {
		log.Errorw("job failed", "error", err)
		return true, err
	}
	log.Infow("job finished")
	return true, nil
}

// Schedule registers job on c. Overlapping runs in this process are skipped.
func (r *Runner) Schedule(ctx context.Context, c *cron.Cron, spec, job string, fn func(ctx context.Context) error) error {
	_, err := c.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(CronLogger(r.log))).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = r.Run(ctx, job, fn)
	})))
	return err
}

type cronLogger struct{ log *logger.Logger }

// CronLogger adapts the service logger to cron's logging interface.
func CronLogger(log *logger.Logger) cron.Logger { return cronLogger{log: log} }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
