package sleep

import (
	"testing"

	"fritter/pkg/scheduler"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    scheduler.Seconds
	slept  []scheduler.Span
	onTick func()
}

func (f *fakeClock) sleep(d scheduler.Span) {
	f.slept = append(f.slept, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	if f.onTick != nil {
		f.onTick()
	}
}

func (f *fakeClock) time() scheduler.Seconds { return f.now }

func TestBlockRunsScheduledWorkInOrder(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{}
	drv := NewFake(clk.sleep, clk.time)
	s := scheduler.NewSimple(drv)

	var fired []scheduler.Seconds
	s.CallAt(1.0, func() {
		fired = append(fired, drv.Now())
		s.CallAt(3.0, func() { fired = append(fired, drv.Now()) })
	})

	worked := drv.Run()
	if worked != 2 {
		t.Fatalf("Run() = %d, want 2", worked)
	}
	if len(fired) != 2 || fired[0] != 1.0 || fired[1] != 3.0 {
		t.Fatalf("fired at %v, want [1 3]", fired)
	}
}

func TestBlockHonorsLimit(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{}
	drv := NewFake(clk.sleep, clk.time)

	fired := false
	drv.Reschedule(10.0, func() { fired = true })

	if worked := drv.Block(5.0); worked != 0 {
		t.Fatalf("Block(5) = %d, want 0", worked)
	}
	if fired {
		t.Fatal("work beyond the limit fired")
	}
	if !drv.IsScheduled() {
		t.Fatal("pending work lost after limited Block")
	}
}

func TestIdleBlockReturnsImmediately(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{}
	drv := NewFake(clk.sleep, clk.time)
	if worked := drv.Run(); worked != 0 {
		t.Fatalf("Run() on idle driver = %d, want 0", worked)
	}
	if len(clk.slept) != 0 {
		t.Fatalf("idle driver slept %v", clk.slept)
	}
}

func TestLateWakeupRunsWorkOnce(t *testing.T) {
	t.Parallel()
	// A sleep that oversleeps: the clock jumps far past the deadline.
	clk := &fakeClock{}
	drv := NewFake(func(d scheduler.Span) { clk.now = clk.now.Add(d + 2.5) }, clk.time)
	s := scheduler.NewSimple(drv)

	var observed []scheduler.Seconds
	s.CallAt(1.0, func() { observed = append(observed, drv.Now()) })

	drv.Run()
	if len(observed) != 1 || observed[0] != 3.5 {
		t.Fatalf("observed %v, want [3.5]", observed)
	}
}
