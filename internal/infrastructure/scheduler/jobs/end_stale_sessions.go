package jobs

import (
	"context"
	"time"

	"github.com/Blackbeard96/summer-games/internal/application/command"
	"github.com/Blackbeard96/summer-games/pkg/logger"
)

// StaleEnder ends session rooms left open too long.
type StaleEnder interface {
	EndStale(ctx context.Context, cmd command.EndStaleSessionsCommand) ([]string, error)
}

// EndStaleSessionsJob ends active rooms older than a maximum age.
type EndStaleSessionsJob struct {
	ender  StaleEnder
	maxAge time.Duration
	log    *logger.Logger
}

// NewEndStaleSessionsJob creates the job. maxAge <= 0 uses the session
// handler's configured maximum.
func NewEndStaleSessionsJob(ender StaleEnder, maxAge time.Duration, log *logger.Logger) *EndStaleSessionsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &EndStaleSessionsJob{ender: ender, maxAge: maxAge, log: log}
}

// Name implements scheduler.Job.
func (j *EndStaleSessionsJob) Name() string { return "end_stale_sessions" }

// Description implements scheduler.Job.
func (j *EndStaleSessionsJob) Description() string {
	return "Ends session rooms that stayed active past the maximum duration"
}

// Run implements scheduler.Job.
func (j *EndStaleSessionsJob) Run(ctx context.Context) error {
	ended, err := j.ender.EndStale(ctx, command.EndStaleSessionsCommand{MaxAge: j.maxAge})
	if err != nil {
		return err
	}
	if len(ended) > 0 {
		j.log.Info("stale sessions ended", logger.Int("count", len(ended)))
	}
	return nil
}
