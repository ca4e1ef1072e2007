package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackbeard96/summer-games/internal/application/command"
)

type fakeLocker struct {
	mu      sync.Mutex
	holder  map[string]string
	failErr error
	unlocks int
}

func newFakeLocker() *fakeLocker { return &fakeLocker{holder: map[string]string{}} }

func (l *fakeLocker) TryLock(_ context.Context, name, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return false, l.failErr
	}
	if _, held := l.holder[name]; held {
		return false, nil
	}
	l.holder[name] = token
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	if l.holder[name] == token {
		delete(l.holder, name)
	}
	return nil
}

type countingJob struct {
	runs int
	err  error
}

func (c *countingJob) Name() string        { return "count" }
func (c *countingJob) Description() string { return "counts runs" }
func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func TestExclusive_RunsWhenLockAcquired(t *testing.T) {
	locker := newFakeLocker()
	inner := &countingJob{}
	job := Exclusive(inner, locker, time.Minute, nil)

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, inner.runs)
	assert.Equal(t, 2, locker.unlocks)
	assert.Empty(t, locker.holder)
	assert.Equal(t, "count", job.Name())
}

func TestExclusive_SkipsWhenHeldElsewhere(t *testing.T) {
	locker := newFakeLocker()
	locker.holder["job:count"] = "other-instance"
	inner := &countingJob{}

	require.NoError(t, Exclusive(inner, locker, time.Minute, nil).Run(context.Background()))
	assert.Zero(t, inner.runs)
	assert.Equal(t, "other-instance", locker.holder["job:count"])
}

func TestExclusive_RunsUnguardedWhenLockerFails(t *testing.T) {
	locker := newFakeLocker()
	locker.failErr = errors.New("redis down")
	inner := &countingJob{err: errors.New("job error")}

	err := Exclusive(inner, locker, time.Minute, nil).Run(context.Background())
	assert.EqualError(t, err, "job error")
	assert.Equal(t, 1, inner.runs)
	assert.Zero(t, locker.unlocks)
}

type fakeDueLocker struct {
	got    command.LockDueAssessmentsCommand
	result *command.LockDueAssessmentsResult
	err    error
}

func (f *fakeDueLocker) HandleDue(_ context.Context, cmd command.LockDueAssessmentsCommand) (*command.LockDueAssessmentsResult, error) {
	f.got = cmd
	return f.result, f.err
}

func TestLockDueAssessmentsJob(t *testing.T) {
	f := &fakeDueLocker{result: &command.LockDueAssessmentsResult{Locked: []string{"a1", "a2"}}}
	job := NewLockDueAssessmentsJob(f, 25, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 25, f.got.Limit)

	f.result = &command.LockDueAssessmentsResult{Locked: []string{"a1"}, Failed: 2}
	assert.ErrorContains(t, job.Run(context.Background()), "2 assessments failed")

	f.err = errors.New("db down")
	assert.EqualError(t, job.Run(context.Background()), "db down")
}

type fakeStaleEnder struct {
	got   command.EndStaleSessionsCommand
	ended []string
}

func (f *fakeStaleEnder) EndStale(_ context.Context, cmd command.EndStaleSessionsCommand) ([]string, error) {
	f.got = cmd
	return f.ended, nil
}

func TestEndStaleSessionsJob(t *testing.T) {
	f := &fakeStaleEnder{ended: []string{"r1"}}
	job := NewEndStaleSessionsJob(f, 2*time.Hour, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2*time.Hour, f.got.MaxAge)
	assert.Equal(t, "end_stale_sessions", job.Name())
}
