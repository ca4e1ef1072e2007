package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Second)), ErrJobAlreadyExists)

	_, err := s.GetJobInfo("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)
}

func TestScheduler_RunNowAppliesTimeout(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	slow := &funcJob{name: "slow", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	require.NoError(t, s.RegisterWithTimeout(slow, NewIntervalSchedule(time.Hour), 10*time.Millisecond))

	res, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)

	info, err := s.GetJobInfo("slow")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.RunCount)
	assert.EqualValues(t, 1, info.FailCount)
	assert.Equal(t, "10ms", info.Timeout)
	assert.False(t, info.Running)

	snap := s.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap.TotalFailures)
	assert.EqualValues(t, 1, snap.FailuresByJob["slow"])
}

func TestScheduler_RunNowRecoversPanic(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	require.NoError(t, s.Register(&funcJob{name: "boom", run: func(context.Context) error {
		panic("bad")
	}}, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "boom")
	assert.ErrorContains(t, err, "panicked")

	_, err = s.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunsDueJobsWithoutOverlap(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickInterval: 5 * time.Millisecond})

	var runs, concurrent, maxConcurrent int32
	release := make(chan struct{})
	job := &funcJob{name: "tick", run: func(ctx context.Context) error {
		n := atomic.AddInt32(&concurrent, 1)
		defer atomic.AddInt32(&concurrent, -1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if n <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, n) {
				break
			}
		}
		atomic.AddInt32(&runs, 1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, time.Millisecond)
	// The first run is still blocked; later ticks must not start another.
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&runs))

	_, err := s.RunNow(context.Background(), "tick")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxConcurrent))
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickInterval: 2 * time.Millisecond})
	var mu sync.Mutex
	ran := false
	require.NoError(t, s.Register(&funcJob{name: "off", run: func(context.Context) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	}}, NewIntervalSchedule(time.Millisecond)))
	require.NoError(t, s.DisableJob("off"))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran)
}

func TestScheduler_History(t *testing.T) {
	s := NewScheduler(SchedulerConfig{MaxHistorySize: 2})
	fail := errors.New("nope")
	require.NoError(t, s.Register(&funcJob{name: "a", run: func(context.Context) error { return nil }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "b", run: func(context.Context) error { return fail }}, NewIntervalSchedule(time.Hour)))

	_, _ = s.RunNow(context.Background(), "a")
	_, _ = s.RunNow(context.Background(), "b")
	_, _ = s.RunNow(context.Background(), "a")

	hist := s.GetHistory(0)
	require.Len(t, hist, 2)
	assert.Equal(t, "b", hist[0].JobName)
	assert.ErrorIs(t, hist[0].Error, fail)
	assert.Equal(t, "a", hist[1].JobName)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "every 1h0m0s", jobs[0].Schedule)
}

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	s := NewIntervalSchedule(30 * time.Second)
	assert.Equal(t, now.Add(30*time.Second), s.Next(now))

	assert.Equal(t, DefaultInterval, NewIntervalSchedule(0).Interval)
	assert.Equal(t, DefaultInterval, NewIntervalSchedule(-time.Second).Interval)
}
