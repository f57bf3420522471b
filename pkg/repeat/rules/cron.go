package rules

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts both 5-field and 6-field (with seconds) specs plus
// descriptors like "@hourly" and "@every 55m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Cron adapts a cron expression to the RecurrenceRule contract. Cron
// occurrences are absolute, so Next and StepsBetween ignore the reference
// anchor.
type Cron struct {
	spec  string
	sched cron.Schedule
}

// ParseCron builds a rule from a cron expression evaluated in loc.
func ParseCron(spec string, loc *time.Location) (Cron, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return Cron{}, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if ss, ok := sched.(*cron.SpecSchedule); ok {
		ss.Location = loc
	}
	return Cron{spec: spec, sched: sched}, nil
}

// Spec returns the original expression.
func (c Cron) Spec() string { return c.spec }

func (c Cron) Next(after, reference time.Time) time.Time {
	return c.sched.Next(after)
}

func (c Cron) StepsBetween(earlier, later, reference time.Time) uint64 {
	var n uint64
	t := earlier
	for {
		t = c.sched.Next(t)
		if t.IsZero() || t.After(later) {
			return n
		}
		n++
	}
}
