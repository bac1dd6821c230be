package clock

import "time"

// Clock abstracts wall-clock reads so time-window logic (log dedup,
// mutation cooldowns) can be tested with a controllable clock.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type Wall struct{}

var _ Clock = Wall{}

func (Wall) Now() time.Time {
	return time.Now()
}

func (Wall) Since(t time.Time) time.Duration {
	return time.Since(t)
}
