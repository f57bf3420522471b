package rules

import (
	"time"
)

// Calendar rules repeat on wall-clock boundaries in a named IANA zone:
// the k-th boundary carries the reference's wall-clock reading, k units
// later. Where a DST transition makes that reading nonexistent the
// boundary resolves to the instant just after the gap; where it is
// ambiguous the earlier instant wins. Both choices are part of the
// contract.

// Weeks repeats every n weeks, preserving the reference's local time of
// day across DST changes.
type Weeks struct {
	n   int64
	loc *time.Location
}

// EveryWeeks returns a calendar rule repeating every n weeks in loc.
func EveryWeeks(n int, loc *time.Location) (Weeks, error) {
	if n <= 0 || loc == nil {
		return Weeks{}, ErrZeroInterval
	}
	return Weeks{n: int64(n), loc: loc}, nil
}

func (w Weeks) boundary(reference time.Time, k int64) time.Time {
	r := reference.In(w.loc)
	y, mo, d := r.Date()
	hh, mi, se := r.Clock()
	// Normalize the date portion in UTC so DST cannot interfere with the
	// day arithmetic, then resolve the zone placement.
	nd := time.Date(y, mo, d+int(7*k*w.n), hh, mi, se, r.Nanosecond(), time.UTC)
	return civilInstant(nd.Year(), nd.Month(), nd.Day(), hh, mi, se, r.Nanosecond(), w.loc)
}

func (w Weeks) Next(after, reference time.Time) time.Time {
	return nextBoundary(after, reference, w.boundary, func(ref, t time.Time) int64 {
		return int64(t.Sub(ref) / (time.Duration(w.n) * 7 * 24 * time.Hour))
	})
}

func (w Weeks) StepsBetween(earlier, later, reference time.Time) uint64 {
	return stepsBetween(earlier, later, reference, w.Next)
}

// Months repeats every n months. Shorter target months clamp the day of
// month (Jan 31 + 1 month = Feb 28/29).
type Months struct {
	n   int64
	loc *time.Location
}

// EveryMonths returns a calendar rule repeating every n months in loc.
func EveryMonths(n int, loc *time.Location) (Months, error) {
	if n <= 0 || loc == nil {
		return Months{}, ErrZeroInterval
	}
	return Months{n: int64(n), loc: loc}, nil
}

func (m Months) boundary(reference time.Time, k int64) time.Time {
	r := reference.In(m.loc)
	y, mo, d := r.Date()
	hh, mi, se := r.Clock()
	total := int64(y)*12 + int64(mo) - 1 + k*m.n
	ny := int(total / 12)
	nm := time.Month(total%12 + 1)
	if total < 0 && total%12 != 0 {
		ny--
		nm = time.Month(total%12 + 12 + 1)
	}
	nd := d
	if last := daysIn(ny, nm); nd > last {
		nd = last
	}
	return civilInstant(ny, nm, nd, hh, mi, se, r.Nanosecond(), m.loc)
}

func (m Months) Next(after, reference time.Time) time.Time {
	return nextBoundary(after, reference, m.boundary, func(ref, t time.Time) int64 {
		months := int64(t.Year()-ref.Year())*12 + int64(t.Month()-ref.Month())
		return months / m.n
	})
}

func (m Months) StepsBetween(earlier, later, reference time.Time) uint64 {
	return stepsBetween(earlier, later, reference, m.Next)
}

// Years repeats every n years; Feb 29 references clamp to Feb 28 in
// non-leap years.
type Years struct {
	n   int64
	loc *time.Location
}

// EveryYears returns a calendar rule repeating every n years in loc.
func EveryYears(n int, loc *time.Location) (Years, error) {
	if n <= 0 || loc == nil {
		return Years{}, ErrZeroInterval
	}
	return Years{n: int64(n), loc: loc}, nil
}

func (yr Years) boundary(reference time.Time, k int64) time.Time {
	r := reference.In(yr.loc)
	y, mo, d := r.Date()
	hh, mi, se := r.Clock()
	ny := y + int(k*yr.n)
	nd := d
	if last := daysIn(ny, mo); nd > last {
		nd = last
	}
	return civilInstant(ny, mo, nd, hh, mi, se, r.Nanosecond(), yr.loc)
}

func (yr Years) Next(after, reference time.Time) time.Time {
	return nextBoundary(after, reference, yr.boundary, func(ref, t time.Time) int64 {
		return int64(t.Year()-ref.Year()) / yr.n
	})
}

func (yr Years) StepsBetween(earlier, later, reference time.Time) uint64 {
	return stepsBetween(earlier, later, reference, yr.Next)
}

// nextBoundary finds the smallest k >= 1 with boundary(k) > after, using
// estimate to seed the search. Boundaries are monotone in k.
func nextBoundary(after, reference time.Time, boundary func(time.Time, int64) time.Time, estimate func(ref, t time.Time) int64) time.Time {
	k := int64(1)
	if after.After(reference) {
		if est := estimate(reference.In(after.Location()), after); est > 1 {
			k = est - 1
		}
	}
	for k > 1 && boundary(reference, k-1).After(after) {
		k--
	}
	for !boundary(reference, k).After(after) {
		k++
	}
	return boundary(reference, k)
}

// stepsBetween counts boundaries in (earlier, later] by walking Next;
// calendar recurrences are sparse enough that this stays cheap.
func stepsBetween(earlier, later, reference time.Time, next func(after, reference time.Time) time.Time) uint64 {
	var n uint64
	t := earlier
	for {
		t = next(t, reference)
		if t.After(later) {
			return n
		}
		n++
	}
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// civilInstant maps wall-clock components in loc to an instant, applying
// the DST contract: nonexistent readings resolve to the instant just
// after the gap, ambiguous readings to the earlier of the two instants.
func civilInstant(y int, mo time.Month, d, hh, mi, se, ns int, loc *time.Location) time.Time {
	naive := time.Date(y, mo, d, hh, mi, se, ns, time.UTC)
	approx := time.Date(y, mo, d, hh, mi, se, ns, loc)

	offsets := map[int]bool{}
	for _, probe := range []time.Time{approx.Add(-26 * time.Hour), approx, approx.Add(26 * time.Hour)} {
		_, off := probe.Zone()
		offsets[off] = true
	}

	var matches []time.Time
	var lo, hi time.Time
	for off := range offsets {
		cand := naive.Add(-time.Duration(off) * time.Second).In(loc)
		if lo.IsZero() || cand.Before(lo) {
			lo = cand
		}
		if hi.IsZero() || cand.After(hi) {
			hi = cand
		}
		cy, cmo, cd := cand.Date()
		chh, cmi, cse := cand.Clock()
		if cy == y && cmo == mo && cd == d && chh == hh && cmi == mi && cse == se {
			matches = append(matches, cand)
		}
	}

	switch {
	case len(matches) == 1:
		return matches[0]
	case len(matches) > 1:
		earliest := matches[0]
		for _, c := range matches[1:] {
			if c.Before(earliest) {
				earliest = c
			}
		}
		return earliest
	default:
		// Gap: the candidates bracket the transition; binary search for
		// the first instant carrying the post-transition offset.
		return gapEnd(lo, hi, loc)
	}
}

func gapEnd(lo, hi time.Time, loc *time.Location) time.Time {
	if !hi.After(lo) {
		return hi.In(loc)
	}
	_, hiOff := hi.In(loc).Zone()
	for hi.Sub(lo) > time.Nanosecond {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(loc).Zone(); off == hiOff {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi.In(loc)
}
