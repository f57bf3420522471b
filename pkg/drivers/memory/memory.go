// Package memory provides an in-memory TimeDriver whose clock only moves
// when the test (or batch script) advances it.
package memory

import (
	"math"

	"fritter/pkg/scheduler"
)

// Driver is a virtual clock. The zero value starts at time 0 with nothing
// scheduled.
type Driver struct {
	now       scheduler.Seconds
	when      scheduler.Seconds
	work      func()
	scheduled bool
}

// New returns a driver whose clock reads 0.
func New() *Driver { return &Driver{} }

// NewAt returns a driver whose clock reads start.
func NewAt(start scheduler.Seconds) *Driver { return &Driver{now: start} }

func (d *Driver) Now() scheduler.Seconds { return d.now }

// Reschedule installs the single pending wake-up, replacing any prior
// one. Deadlines at or before the current time are clamped one ULP into
// the future so that work rescheduling itself "now" cannot keep time from
// moving forward.
func (d *Driver) Reschedule(when scheduler.Seconds, work func()) {
	floor := scheduler.Seconds(math.Nextafter(float64(d.now), math.Inf(1)))
	if when.Compare(floor) < 0 {
		when = floor
	}
	d.when, d.work, d.scheduled = when, work, true
}

func (d *Driver) Unschedule() {
	d.work, d.scheduled = nil, false
}

// IsScheduled reports whether a wake-up is pending.
func (d *Driver) IsScheduled() bool { return d.scheduled }

// ScheduledAt reports the pending wake-up deadline, if any.
func (d *Driver) ScheduledAt() (scheduler.Seconds, bool) {
	if !d.scheduled {
		return 0, false
	}
	return d.when, true
}

// Advance moves the clock to the next pending deadline and fires. It
// reports the span advanced; with nothing scheduled it is a no-op
// returning false.
func (d *Driver) Advance() (scheduler.Span, bool) {
	if !d.scheduled {
		return 0, false
	}
	target := d.when
	if target.Compare(d.now) < 0 {
		target = d.now
	}
	moved := target.Sub(d.now)
	d.runUntil(target)
	d.now = target
	return moved, true
}

// AdvanceBy moves the clock forward by delta, firing every wake-up that
// falls within the window. Each wake-up observes the clock at its own
// deadline, so re-armed wake-ups later in the window fire too, and all
// work due at one instant fires before time moves past it. The clock
// finishes at exactly now + delta.
func (d *Driver) AdvanceBy(delta scheduler.Span) {
	target := d.now.Add(delta)
	d.runUntil(target)
	d.now = target
}

func (d *Driver) runUntil(target scheduler.Seconds) {
	for d.scheduled && d.when.Compare(target) <= 0 {
		if d.when.Compare(d.now) > 0 {
			d.now = d.when
		}
		work := d.work
		d.work, d.scheduled = nil, false
		work()
	}
}
