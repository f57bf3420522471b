package scheduler

// TimeDriver abstracts an external clock. A driver holds at most one
// pending wake-up at a time.
//
// Reschedule installs a wake-up at or after the given time, replacing any
// prior wake-up. The driver must not invoke the work before Reschedule
// returns, even for deadlines already in the past. Unschedule removes the
// pending wake-up and is idempotent.
type TimeDriver[T any] interface {
	Now() T
	Reschedule(when T, work func())
	Unschedule()
}

// Moment is the constraint on time values: total order, plus arithmetic
// against a delta type D. Seconds/Span satisfy it, as do
// time.Time/time.Duration.
type Moment[T, D any] interface {
	Compare(T) int
	Add(D) T
	Sub(T) D
}

// Invocable is the capability the scheduler requires from work: a single
// Run method with no arguments and no return value. Failures escape as
// panics through the driver's fire callback; the scheduler keeps its own
// state consistent (see Scheduler).
type Invocable interface {
	Run()
}

// Call adapts a plain function to Invocable.
type Call func()

func (c Call) Run() { c() }

// Canceller is anything with an idempotent Cancel, such as a *FutureCall.
type Canceller interface {
	Cancel()
}

// PriorityQueue is the storage contract the scheduler depends on. The
// queue orders items by the less function supplied at construction; the
// scheduler orders calls by (deadline, id). Items returns an unordered
// snapshot.
type PriorityQueue[I any] interface {
	Add(I)
	Peek() (I, bool)
	Pop() (I, bool)
	Remove(match func(I) bool) (I, bool)
	Items() []I
	Len() int
}
