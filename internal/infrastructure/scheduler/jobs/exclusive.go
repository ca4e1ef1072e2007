package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// Job mirrors scheduler.Job so wrappers do not import the scheduler.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Description() string
}

// Locker is a distributed mutex keyed by name. The Redis cache implements it.
type Locker interface {
	TryLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name, token string) error
}

// ExclusiveJob runs the wrapped job only on the instance that wins the
// lock. Losing instances skip the run without error. When the locker
// itself fails the job runs anyway; the wrapped jobs are idempotent.
type ExclusiveJob struct {
	job    Job
	locker Locker
	ttl    time.Duration
	log    *logger.Logger
}

// Exclusive wraps job with locker. ttl should exceed the job timeout.
func Exclusive(job Job, locker Locker, ttl time.Duration, log *logger.Logger) *ExclusiveJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ExclusiveJob{job: job, locker: locker, ttl: ttl, log: log}
}

// Name implements scheduler.Job.
func (e *ExclusiveJob) Name() string { return e.job.Name() }

// Description implements scheduler.Job.
func (e *ExclusiveJob) Description() string { return e.job.Description() }

// Run implements scheduler.Job.
func (e *ExclusiveJob) Run(ctx context.Context) error {
	name := "job:" + e.job.Name()
	token := uuid.NewString()

	acquired, err := e.locker.TryLock(ctx, name, token, e.ttl)
	if err != nil {
		e.log.Warn("job lock unavailable, running unguarded",
			logger.String("job", e.job.Name()),
			logger.Err(err),
		)
		return e.job.Run(ctx)
	}
	if !acquired {
		e.log.Debug("job held by another instance", logger.String("job", e.job.Name()))
		return nil
	}

	defer func() {
		// ctx may already be cancelled by the job timeout.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.locker.Unlock(unlockCtx, name, token); err != nil {
			e.log.Warn("job unlock failed", logger.String("job", e.job.Name()), logger.Err(err))
		}
	}()
	return e.job.Run(ctx)
}
