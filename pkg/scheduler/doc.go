// Package scheduler is the core of fritter: timed calls collected by
// CallAt and connected to a TimeDriver that causes them to actually run.
//
// # Overview
//
// A Scheduler owns a priority queue of pending calls and an arming
// relationship with a driver. The driver owns the clock and a single
// pending wake-up; whenever the earliest deadline changes, the scheduler
// re-arms the driver. When the driver fires, the scheduler removes and
// invokes every call whose deadline has passed, in (deadline, id) order,
// then re-arms for the new minimum.
//
// # Genericity
//
// The scheduler is generic over the time type T, its delta type D, and
// the work type W. T only needs ordering and arithmetic (the Moment
// constraint); W only needs Run (the Invocable capability). Seconds/Span
// is the default physical time scalar; time.Time/time.Duration satisfy
// Moment natively for civil scheduling.
//
// # Execution model
//
// Single-threaded cooperative. All operations on a Scheduler and its
// FutureCalls must happen on the execution context that drives the root
// TimeDriver. Scheduling from inside a firing call is supported: work
// scheduled at or before the current tick runs in the same pass.
package scheduler
