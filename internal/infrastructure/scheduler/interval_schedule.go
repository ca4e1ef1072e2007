package scheduler

import (
	"fmt"
	"time"
)

// DefaultInterval replaces a zero or negative interval.
const DefaultInterval = time.Minute

// IntervalSchedule runs a job every Interval, measured from the end of the
// previous run. The lock-due and stale-session jobs use it.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule returns a schedule for interval. A non-positive value
// would fire on every scheduler tick, so it becomes DefaultInterval.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String renders the schedule for the admin jobs listing.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("every %s", s.Interval)
}
