// Package rules provides RecurrenceRule implementations: fixed physical
// intervals over the float-seconds clock, fixed deltas and cron
// expressions over civil time, and calendar-unit recurrences (weeks,
// months, years) in a named IANA zone.
package rules

import (
	"errors"
	"math"

	"fritter/pkg/scheduler"
)

// ErrZeroInterval rejects recurrence periods that would never advance.
var ErrZeroInterval = errors.New("recurrence interval must be positive and finite")

// EverySecond repeats on a fixed physical interval measured in seconds
// from the reference anchor. Boundaries are reference + k*period for
// every integer k, so times before the reference have boundaries too.
type EverySecond struct {
	period float64
}

// Every returns a fixed-interval rule with the given period in seconds.
func Every(seconds float64) (EverySecond, error) {
	if !(seconds > 0) || math.IsInf(seconds, 1) {
		return EverySecond{}, ErrZeroInterval
	}
	return EverySecond{period: seconds}, nil
}

// MustEvery is Every for static periods known to be valid.
func MustEvery(seconds float64) EverySecond {
	r, err := Every(seconds)
	if err != nil {
		panic(err)
	}
	return r
}

func (e EverySecond) Next(after, reference scheduler.Seconds) scheduler.Seconds {
	k := math.Floor(float64(after.Sub(reference)) / e.period)
	next := reference.Add(scheduler.Span((k + 1) * e.period))
	// Guard against float rounding leaving next at or before after.
	for next.Compare(after) <= 0 {
		next = next.Add(scheduler.Span(e.period))
	}
	return next
}

func (e EverySecond) StepsBetween(earlier, later, reference scheduler.Seconds) uint64 {
	if later.Compare(earlier) <= 0 {
		return 0
	}
	hi := math.Floor(float64(later.Sub(reference)) / e.period)
	lo := math.Floor(float64(earlier.Sub(reference)) / e.period)
	if hi <= lo {
		return 0
	}
	return uint64(hi - lo)
}
