// Package jobs contains the periodic jobs run by the scheduler.
package jobs

import (
	"context"
	"fmt"

	"github.com/Blackbeard96/summer-games/internal/application/command"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// DueLocker locks assessments whose lock time passed.
type DueLocker interface {
	HandleDue(ctx context.Context, cmd command.LockDueAssessmentsCommand) (*command.LockDueAssessmentsResult, error)
}

// LockDueAssessmentsJob closes goal setting on assessments whose LockAt
// has passed.
type LockDueAssessmentsJob struct {
	locker    DueLocker
	batchSize int
	log       *logger.Logger
}

// NewLockDueAssessmentsJob creates the job. batchSize <= 0 uses the
// handler default.
func NewLockDueAssessmentsJob(locker DueLocker, batchSize int, log *logger.Logger) *LockDueAssessmentsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &LockDueAssessmentsJob{locker: locker, batchSize: batchSize, log: log}
}

// Name implements scheduler.Job.
func (j *LockDueAssessmentsJob) Name() string { return "lock_due_assessments" }

// Description implements scheduler.Job.
func (j *LockDueAssessmentsJob) Description() string {
	return "Locks assessments whose lock time has passed"
}

// Run implements scheduler.Job. Individual lock failures are logged by the
// handler and reported here as an error so the run counts as failed.
func (j *LockDueAssessmentsJob) Run(ctx context.Context) error {
	res, err := j.locker.HandleDue(ctx, command.LockDueAssessmentsCommand{Limit: j.batchSize})
	if err != nil {
		return err
	}
	if len(res.Locked) > 0 {
		j.log.Info("assessments auto-locked", logger.Int("count", len(res.Locked)))
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d assessments failed to lock", res.Failed)
	}
	return nil
}
