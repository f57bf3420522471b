// Package sleep provides a TimeDriver that blocks the calling goroutine,
// sleeping until each pending deadline and running the work inline. It
// suits batch scripts that do not want an event loop.
package sleep

import (
	"math"
	"time"

	"fritter/pkg/scheduler"
)

// Driver blocks with the configured sleep function until scheduled work
// is due. The zero value is not usable; construct with New or NewFake.
type Driver struct {
	sleep func(scheduler.Span)
	now   func() scheduler.Seconds

	when      scheduler.Seconds
	work      func()
	scheduled bool
}

// New returns a driver backed by the real clock (time.Now / time.Sleep).
func New() *Driver {
	return &Driver{
		sleep: func(d scheduler.Span) {
			time.Sleep(time.Duration(float64(d) * float64(time.Second)))
		},
		now: func() scheduler.Seconds {
			return scheduler.Seconds(float64(time.Now().UnixNano()) / 1e9)
		},
	}
}

// NewFake returns a driver with injected sleep and now functions. Tests
// use this to simulate late wake-ups: a now function that jumps past
// several deadlines exercises the repeater's drift absorption.
func NewFake(sleep func(scheduler.Span), now func() scheduler.Seconds) *Driver {
	return &Driver{sleep: sleep, now: now}
}

func (d *Driver) Now() scheduler.Seconds { return d.now() }

func (d *Driver) Reschedule(when scheduler.Seconds, work func()) {
	d.when, d.work, d.scheduled = when, work, true
}

func (d *Driver) Unschedule() {
	d.work, d.scheduled = nil, false
}

// IsScheduled reports whether a wake-up is pending.
func (d *Driver) IsScheduled() bool { return d.scheduled }

// Block sleeps and fires until no work remains or the deadline of the
// next pending call lies beyond limit seconds from now. It returns the
// number of calls performed. An idle driver returns immediately.
func (d *Driver) Block(limit scheduler.Span) int {
	worked := 0
	maxTime := d.now().Add(limit)
	for d.scheduled {
		when := d.when
		now := d.now()
		wait := when.Sub(now)
		if remain := maxTime.Sub(now); float64(remain) < float64(wait) {
			wait = remain
		}
		if wait > 0 {
			d.sleep(wait)
		}
		if when.Compare(maxTime) > 0 {
			break
		}
		work := d.work
		d.work, d.scheduled = nil, false
		work()
		worked++
	}
	return worked
}

// Run blocks until all scheduled work (including work scheduled by the
// work itself) has been performed.
func (d *Driver) Run() int {
	return d.Block(scheduler.Span(math.Inf(1)))
}
