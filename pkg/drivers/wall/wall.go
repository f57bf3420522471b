// Package wall provides the real-clock TimeDriver for long-running
// processes: a single one-shot timer serviced by a run loop. All
// scheduler operations must happen on the loop goroutine; Invoke hands
// closures from other goroutines (config reloads, signal handlers) to
// the loop.
package wall

import (
	"context"
	"time"
)

// Driver drives a civil-time scheduler from the operating system clock.
type Driver struct {
	loc     *time.Location
	onPanic func(recovered any)

	when  time.Time
	work  func()
	armed bool

	kick  chan struct{}
	calls chan func()
}

// Option configures a Driver.
type Option func(*Driver)

// WithLocation sets the zone Now reports in (default time.Local).
func WithLocation(loc *time.Location) Option {
	return func(d *Driver) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithPanicHandler installs the error channel for failing work: the run
// loop recovers panics from fired work and reports them here instead of
// crashing. Without a handler panics propagate out of Run.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(d *Driver) { d.onPanic = fn }
}

func New(opts ...Option) *Driver {
	d := &Driver{
		loc:   time.Local,
		kick:  make(chan struct{}, 1),
		calls: make(chan func(), 64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Now() time.Time { return time.Now().In(d.loc) }

func (d *Driver) Reschedule(when time.Time, work func()) {
	d.when, d.work, d.armed = when, work, true
	d.poke()
}

func (d *Driver) Unschedule() {
	d.work, d.armed = nil, false
	d.poke()
}

func (d *Driver) poke() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Invoke runs fn on the loop goroutine. It blocks when the loop is far
// behind; callers on the loop itself must not use it.
func (d *Driver) Invoke(fn func()) {
	d.calls <- fn
}

// Run services the timer until ctx is canceled. Scheduler state is only
// touched from this goroutine.
func (d *Driver) Run(ctx context.Context) error {
	const idle = time.Hour
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		wait := idle
		if d.armed {
			wait = time.Until(d.when)
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.kick:
			// Arming changed; recompute the wait.
		case fn := <-d.calls:
			d.invoke(fn)
		case <-timer.C:
			if !d.armed {
				continue
			}
			work := d.work
			d.work, d.armed = nil, false
			d.invoke(work)
		}
	}
}

func (d *Driver) invoke(fn func()) {
	if d.onPanic == nil {
		fn()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.onPanic(r)
		}
	}()
	fn()
}
