package rules

import (
	"time"
)

// EveryDelta repeats on a fixed time.Duration measured from the reference
// instant. Unlike the calendar rules it ignores wall-clock structure:
// a 24h delta drifts across DST changes, a Weeks rule does not.
type EveryDelta struct {
	delta time.Duration
}

// EveryDuration returns a fixed-delta rule over civil time.
func EveryDuration(d time.Duration) (EveryDelta, error) {
	if d <= 0 {
		return EveryDelta{}, ErrZeroInterval
	}
	return EveryDelta{delta: d}, nil
}

func (e EveryDelta) Next(after, reference time.Time) time.Time {
	k := floorDiv(after.Sub(reference), e.delta)
	next := reference.Add(time.Duration(k+1) * e.delta)
	for !next.After(after) {
		next = next.Add(e.delta)
	}
	return next
}

func (e EveryDelta) StepsBetween(earlier, later, reference time.Time) uint64 {
	if !later.After(earlier) {
		return 0
	}
	hi := floorDiv(later.Sub(reference), e.delta)
	lo := floorDiv(earlier.Sub(reference), e.delta)
	if hi <= lo {
		return 0
	}
	return uint64(hi - lo)
}

// floorDiv divides rounding toward negative infinity, so boundaries
// before the reference count correctly.
func floorDiv(a, b time.Duration) int64 {
	q := int64(a / b)
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
