package scheduler

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next fire time strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// DailySchedule parses a five-field cron expression evaluated in the named
// time zone. Fire times are returned in that zone.
func DailySchedule(expr, zone string) (Schedule, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", zone, err)
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("CRON_TZ=%s %s", zone, expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return zoned{sched: sched, loc: loc}, nil
}

// zoned converts cron results, which come back in the caller's location,
// into the schedule's own zone.
type zoned struct {
	sched cron.Schedule
	loc   *time.Location
}

func (z zoned) Next(t time.Time) time.Time {
	return z.sched.Next(t).In(z.loc)
}

// Interval fires every Every plus a random delay in [0, Jitter).
type Interval struct {
	Every  time.Duration
	Jitter time.Duration

	// Rand returns a value in [0, n). Defaults to math/rand/v2.
	Rand func(n int64) int64
}

func (i Interval) Next(t time.Time) time.Time {
	next := t.Add(i.Every)
	if i.Jitter > 0 {
		rnd := i.Rand
		if rnd == nil {
			rnd = rand.Int64N
		}
		next = next.Add(time.Duration(rnd(int64(i.Jitter))))
	}
	return next
}
