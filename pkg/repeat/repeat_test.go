package repeat_test

import (
	"testing"

	"fritter/pkg/drivers/memory"
	"fritter/pkg/drivers/sleep"
	"fritter/pkg/repeat"
	"fritter/pkg/repeat/rules"
	"fritter/pkg/scheduler"
)

type invocation struct {
	at    scheduler.Seconds
	steps uint64
}

func TestNoFireBeforeFirstBoundary(t *testing.T) {
	t.Parallel()
	drv := memory.New()
	s := scheduler.NewSimple(drv)

	fired := 0
	_, err := repeat.Repeatedly(s, rules.MustEvery(1.0), func(steps uint64, _ scheduler.Canceller) {
		fired++
	})
	if err != nil {
		t.Fatalf("Repeatedly: %v", err)
	}

	drv.AdvanceBy(0.5)
	if fired != 0 {
		t.Fatalf("fired %d times before the first boundary", fired)
	}
}

func TestBoundariesFireOneStepEach(t *testing.T) {
	t.Parallel()
	drv := memory.New()
	s := scheduler.NewSimple(drv)

	var log []invocation
	_, err := repeat.Repeatedly(s, rules.MustEvery(1.0), func(steps uint64, _ scheduler.Canceller) {
		log = append(log, invocation{drv.Now(), steps})
	})
	if err != nil {
		t.Fatalf("Repeatedly: %v", err)
	}

	drv.AdvanceBy(0.5)
	drv.AdvanceBy(2.7) // clock ends at 3.2; boundaries 1, 2, 3 fire en route

	want := []invocation{{1.0, 1}, {2.0, 1}, {3.0, 1}}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}

	var sum uint64
	for _, inv := range log {
		sum += inv.steps
	}
	if sum != 3 { // floor(3.2 / 1.0)
		t.Fatalf("step sum = %d, want 3", sum)
	}
}

func TestLateWakeupReportsMissedSteps(t *testing.T) {
	t.Parallel()
	// A driver that oversleeps: the clock jumps from 0 straight past
	// three boundaries, so the single invocation reports steps=3.
	var now scheduler.Seconds
	drv := sleep.NewFake(
		func(d scheduler.Span) { now = now.Add(d + 2.2) },
		func() scheduler.Seconds { return now },
	)
	s := scheduler.NewSimple(drv)

	var log []invocation
	stop, err := repeat.Repeatedly(s, rules.MustEvery(1.0), func(steps uint64, st scheduler.Canceller) {
		log = append(log, invocation{drv.Now(), steps})
		st.Cancel()
	})
	if err != nil {
		t.Fatalf("Repeatedly: %v", err)
	}

	drv.Run()

	if len(log) != 1 {
		t.Fatalf("log = %v, want a single invocation", log)
	}
	if log[0].at != 3.2 || log[0].steps != 3 {
		t.Fatalf("invocation = %+v, want at=3.2 steps=3", log[0])
	}
	if !stop.Stopped() {
		t.Fatal("stopper not tripped")
	}
}

func TestStepSumIsDriftFree(t *testing.T) {
	t.Parallel()
	drv := memory.New()
	s := scheduler.NewSimple(drv)

	var sum uint64
	_, err := repeat.Repeatedly(s, rules.MustEvery(0.7), func(steps uint64, _ scheduler.Canceller) {
		sum += steps
	})
	if err != nil {
		t.Fatalf("Repeatedly: %v", err)
	}

	for _, d := range []scheduler.Span{0.3, 1.9, 0.05, 4.0, 0.35} {
		drv.AdvanceBy(d)
	}
	// Clock is at 6.6; boundaries are multiples of 0.7 in (0, 6.6]:
	// floor(6.6/0.7) = 9.
	if sum != 9 {
		t.Fatalf("step sum = %d, want 9", sum)
	}
}

func TestStopFromInsideWork(t *testing.T) {
	t.Parallel()
	drv := memory.New()
	s := scheduler.NewSimple(drv)

	fired := 0
	_, err := repeat.Repeatedly(s, rules.MustEvery(1.0), func(steps uint64, st scheduler.Canceller) {
		fired++
		if fired == 2 {
			st.Cancel()
		}
	})
	if err != nil {
		t.Fatalf("Repeatedly: %v", err)
	}

	drv.AdvanceBy(10.0)
	if fired != 2 {
		t.Fatalf("fired %d times, want 2", fired)
	}
	if drv.IsScheduled() {
		t.Fatal("driver still armed after stop")
	}
}

func TestStopFromOutsideCancelsOutstandingCall(t *testing.T) {
	t.Parallel()
	drv := memory.New()
	s := scheduler.NewSimple(drv)

	fired := 0
	stop, err := repeat.Repeatedly(s, rules.MustEvery(1.0), func(steps uint64, _ scheduler.Canceller) {
		fired++
	})
	if err != nil {
		t.Fatalf("Repeatedly: %v", err)
	}

	drv.AdvanceBy(1.5)
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}

	stop.Cancel()
	stop.Cancel() // idempotent
	if drv.IsScheduled() {
		t.Fatal("driver still armed after external stop")
	}
	drv.AdvanceBy(10.0)
	if fired != 1 {
		t.Fatalf("fired %d times after stop, want 1", fired)
	}
}

func TestExplicitReferenceAnchor(t *testing.T) {
	t.Parallel()
	drv := memory.NewAt(10.0)
	s := scheduler.NewSimple(drv)

	var log []invocation
	_, err := repeat.RepeatedlyAt(s, rules.MustEvery(4.0), func(steps uint64, _ scheduler.Canceller) {
		log = append(log, invocation{drv.Now(), steps})
	}, 0.0)
	if err != nil {
		t.Fatalf("RepeatedlyAt: %v", err)
	}

	// Anchored at 0 with period 4, the next boundary after 10 is 12.
	drv.Advance()
	if len(log) != 1 || log[0].at != 12.0 || log[0].steps != 1 {
		t.Fatalf("log = %v, want [{12 1}]", log)
	}
}
