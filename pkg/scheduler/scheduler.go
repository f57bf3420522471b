package scheduler

import (
	"sort"

	"fritter/pkg/heapq"
)

// FutureCall is the handle returned from Scheduler.CallAt. It reports the
// deadline and allows cancellation. After firing or cancellation the
// handle is inert: Cancel becomes a no-op.
type FutureCall[T Moment[T, D], D any, W Invocable] struct {
	sched    *Scheduler[T, D, W]
	id       uint64
	when     T
	what     W
	called   bool
	canceled bool
}

// When reports the deadline this call is scheduled for.
func (c *FutureCall[T, D, W]) When() T { return c.when }

// ID reports the scheduler-unique id. Lower ids fire first among equal
// deadlines.
func (c *FutureCall[T, D, W]) ID() uint64 { return c.id }

// What returns the scheduled work.
func (c *FutureCall[T, D, W]) What() W { return c.what }

// Cancel removes this call so that it will never run. Canceling a call
// that has already fired or been canceled does nothing.
func (c *FutureCall[T, D, W]) Cancel() {
	if c.called || c.canceled {
		return
	}
	c.canceled = true
	c.sched.removeCall(c)
}

// Scheduler owns a driver and a queue of pending calls.
//
// Invariants: when the scheduler is not inside its fire routine and the
// queue is non-empty, the driver holds a wake-up at the minimum deadline;
// when the queue is empty, no wake-up is outstanding. During a fire pass
// re-arming is deferred and happens exactly once on exit, including when
// a call panics.
type Scheduler[T Moment[T, D], D any, W Invocable] struct {
	driver TimeDriver[T]
	q      PriorityQueue[*FutureCall[T, D, W]]
	nextID uint64
	firing bool
}

// New creates a scheduler on the given driver, backed by the default
// binary-heap queue.
func New[T Moment[T, D], D any, W Invocable](driver TimeDriver[T]) *Scheduler[T, D, W] {
	return NewWithQueue[T, D, W](driver, heapq.New(lessCall[T, D, W]))
}

// NewWithQueue creates a scheduler using a custom queue implementation.
// The queue must order items by (deadline, id); see lessCall for the
// ordering New installs.
func NewWithQueue[T Moment[T, D], D any, W Invocable](driver TimeDriver[T], q PriorityQueue[*FutureCall[T, D, W]]) *Scheduler[T, D, W] {
	return &Scheduler[T, D, W]{driver: driver, q: q}
}

func lessCall[T Moment[T, D], D any, W Invocable](a, b *FutureCall[T, D, W]) bool {
	if c := a.when.Compare(b.when); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

// Now relays the driver's current time.
func (s *Scheduler[T, D, W]) Now() T { return s.driver.Now() }

// CallAt schedules what to run at when, returning a cancelable handle.
// Deadlines in the past are not an error; they fire on the next wake-up.
// Calling CallAt from inside firing work is supported: if the new
// deadline is at or before the tick being fired, it runs in the same
// pass.
func (s *Scheduler[T, D, W]) CallAt(when T, what W) *FutureCall[T, D, W] {
	prev, hadPrev := s.q.Peek()
	c := &FutureCall[T, D, W]{sched: s, id: s.nextID, when: when, what: what}
	s.nextID++
	s.q.Add(c)
	// Re-arm only when the minimum deadline moved earlier; during a fire
	// pass the single re-arm on exit covers it.
	if !s.firing && (!hadPrev || when.Compare(prev.when) < 0) {
		s.driver.Reschedule(when, s.fire)
	}
	return c
}

// Len reports the number of queued calls. Canceled calls are removed from
// the queue when canceled, so they are not counted.
func (s *Scheduler[T, D, W]) Len() int { return s.q.Len() }

// fire is the driver wake-up handler: run everything due at the current
// time in (deadline, id) order, then re-arm once.
func (s *Scheduler[T, D, W]) fire() {
	s.firing = true
	defer func() {
		// Runs on panic too: a failing call terminates this tick but the
		// remaining due work stays queued for the next wake-up.
		s.firing = false
		if head, ok := s.q.Peek(); ok {
			s.driver.Reschedule(head.when, s.fire)
		} else {
			s.driver.Unschedule()
		}
	}()

	now := s.driver.Now()
	for {
		head, ok := s.q.Peek()
		if !ok || head.when.Compare(now) > 0 {
			return
		}
		s.q.Pop()
		if head.canceled {
			continue
		}
		head.called = true
		head.what.Run()
	}
}

func (s *Scheduler[T, D, W]) removeCall(c *FutureCall[T, D, W]) {
	oldHead, _ := s.q.Peek()
	s.q.Remove(func(x *FutureCall[T, D, W]) bool { return x == c })
	if s.firing {
		return
	}
	newHead, ok := s.q.Peek()
	switch {
	case !ok:
		s.driver.Unschedule()
	case newHead != oldHead:
		s.driver.Reschedule(newHead.when, s.fire)
	}
}

// QueuedCall is a snapshot of one live scheduled call, used by
// persistence layers.
type QueuedCall[T, W any] struct {
	When T
	What W
	ID   uint64
}

// Pending returns the live (non-canceled) calls sorted by (deadline, id).
// This is the iteration surface the persistence contract requires.
func (s *Scheduler[T, D, W]) Pending() []QueuedCall[T, W] {
	items := s.q.Items()
	out := make([]QueuedCall[T, W], 0, len(items))
	for _, c := range items {
		if c.canceled {
			continue
		}
		out = append(out, QueuedCall[T, W]{When: c.when, What: c.what, ID: c.id})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].When.Compare(out[j].When); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore bulk re-inserts previously saved calls. Fresh ids are assigned
// in slice order, so relative order among equal deadlines is preserved.
func (s *Scheduler[T, D, W]) Restore(saved []QueuedCall[T, W]) {
	for _, q := range saved {
		s.CallAt(q.When, q.What)
	}
}

// SimpleScheduler schedules plain functions against the float-seconds
// clock. This is the concrete type the branch subsystem operates on.
type SimpleScheduler = Scheduler[Seconds, Span, Call]

// SimpleCall is the handle type issued by a SimpleScheduler.
type SimpleCall = FutureCall[Seconds, Span, Call]

// NewSimple creates a SimpleScheduler on the given driver.
func NewSimple(driver TimeDriver[Seconds]) *SimpleScheduler {
	return New[Seconds, Span, Call](driver)
}
