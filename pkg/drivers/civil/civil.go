// Package civil adapts any physical TimeDriver over epoch seconds into a
// TimeDriver over time.Time in a named zone. Layering it over a memory
// driver gives deterministic tests for civil-time scheduling.
package civil

import (
	"math"
	"time"

	"fritter/pkg/scheduler"
)

// Driver converts between scheduler.Seconds (seconds since the Unix
// epoch) and time.Time in a fixed location.
type Driver struct {
	inner scheduler.TimeDriver[scheduler.Seconds]
	loc   *time.Location
}

// New wraps inner, reporting times in loc (UTC if nil).
func New(inner scheduler.TimeDriver[scheduler.Seconds], loc *time.Location) *Driver {
	if loc == nil {
		loc = time.UTC
	}
	return &Driver{inner: inner, loc: loc}
}

func (d *Driver) Now() time.Time {
	return FromSeconds(d.inner.Now(), d.loc)
}

func (d *Driver) Reschedule(when time.Time, work func()) {
	d.inner.Reschedule(ToSeconds(when), work)
}

func (d *Driver) Unschedule() {
	d.inner.Unschedule()
}

// ToSeconds maps an instant to epoch seconds. Whole seconds convert
// exactly; only the sub-second fraction is subject to float rounding.
func ToSeconds(t time.Time) scheduler.Seconds {
	return scheduler.Seconds(float64(t.Unix()) + float64(t.Nanosecond())/1e9)
}

// FromSeconds maps epoch seconds to an instant in loc.
func FromSeconds(s scheduler.Seconds, loc *time.Location) time.Time {
	sec := math.Floor(float64(s))
	ns := math.Round((float64(s) - sec) * 1e9)
	return time.Unix(int64(sec), int64(ns)).In(loc)
}
