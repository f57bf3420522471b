// Package tree groups timers into branch schedulers that can be paused,
// resumed, and time-scaled together.
//
// A branch is a scheduler whose clock is a linear function of its
// parent's ("trunk") clock. The branch owns no real driver: it is driven
// by a single trampoline call on the trunk that fires the branch's next
// due work. Branches nest; the trunk passed to Branch may itself be a
// branch.
package tree

import (
	"errors"
	"math"

	"fritter/pkg/scheduler"
)

// ErrInvalidScale rejects non-finite or non-positive scale factors. The
// only legitimate path to a stopped branch clock is Pause, which also
// remembers the scale to restore.
var ErrInvalidScale = errors.New("branch scale must be positive and finite")

// Branch derives a child scheduler from trunk. The child's clock starts
// at offset and advances scale times as fast as the trunk's.
func Branch(trunk *scheduler.SimpleScheduler, scale float64, offset scheduler.Seconds) (*BranchManager, *scheduler.SimpleScheduler, error) {
	if !validScale(scale) {
		return nil, nil, ErrInvalidScale
	}
	drv := &branchDriver{
		trunk:        trunk,
		anchorTrunk:  trunk.Now(),
		anchorBranch: offset,
		scale:        scale,
	}
	return &BranchManager{drv: drv}, scheduler.NewSimple(drv), nil
}

func validScale(scale float64) bool {
	return scale > 0 && !math.IsInf(scale, 1) && !math.IsNaN(scale)
}

// BranchManager is the control surface for one branch: pause, unpause,
// and scale changes. Every state change recalibrates the anchors so the
// branch clock reads the same value immediately before and after.
type BranchManager struct {
	drv *branchDriver
}

// Now reports the branch's current time.
func (m *BranchManager) Now() scheduler.Seconds { return m.drv.Now() }

// Scale reports the factor the branch clock advances by relative to the
// trunk; while paused it reports the factor that Unpause will restore.
func (m *BranchManager) Scale() float64 {
	if m.drv.paused {
		return m.drv.scaleSaved
	}
	return m.drv.scale
}

// Paused reports whether the branch clock is stopped.
func (m *BranchManager) Paused() bool { return m.drv.paused }

// Pause freezes the branch clock and cancels the trunk trampoline. The
// branch's queued work is retained.
func (m *BranchManager) Pause() {
	d := m.drv
	if d.paused {
		return
	}
	d.anchorBranch = d.Now()
	d.anchorTrunk = d.trunk.Now()
	d.scaleSaved = d.scale
	d.scale = 0
	d.fudge = 0
	d.paused = true
	d.cancelTrampoline()
}

// Unpause restarts the branch clock from the value it read when paused.
func (m *BranchManager) Unpause() {
	d := m.drv
	if !d.paused {
		return
	}
	d.anchorTrunk = d.trunk.Now()
	d.scale = d.scaleSaved
	d.fudge = 0
	d.paused = false
	d.arm()
}

// ChangeScale sets a new rate of branch time relative to trunk time,
// effective from the current instant. On a paused branch the new scale
// takes effect at Unpause.
func (m *BranchManager) ChangeScale(scale float64) error {
	if !validScale(scale) {
		return ErrInvalidScale
	}
	d := m.drv
	if d.paused {
		d.scaleSaved = scale
		return nil
	}
	d.anchorBranch = d.Now()
	d.anchorTrunk = d.trunk.Now()
	d.scale = scale
	d.fudge = 0
	d.arm()
	return nil
}

// branchDriver implements TimeDriver for the branch scheduler on top of
// the trunk scheduler. At most one trunk trampoline exists at a time;
// every branch state change cancels it and installs a fresh one computed
// from the branch's stored wake-up.
type branchDriver struct {
	trunk *scheduler.SimpleScheduler

	anchorTrunk  scheduler.Seconds
	anchorBranch scheduler.Seconds
	scale        float64
	scaleSaved   float64
	paused       bool

	// fudge keeps the branch clock from reading earlier than an armed
	// branch deadline after the up/down float round trip.
	fudge float64

	pendingWhen scheduler.Seconds
	pendingWork func()
	hasPending  bool
	tramp       *scheduler.SimpleCall
}

func (d *branchDriver) Now() scheduler.Seconds {
	if d.paused {
		return d.anchorBranch
	}
	return d.down(d.trunk.Now())
}

// down translates a trunk time into branch time.
func (d *branchDriver) down(trunkTime scheduler.Seconds) scheduler.Seconds {
	return scheduler.Seconds(float64(d.anchorBranch) + (float64(trunkTime)-float64(d.anchorTrunk))*d.scale + d.fudge)
}

// up translates a branch time into trunk time, adjusting fudge so that
// down(up(b)) == b exactly.
func (d *branchDriver) up(branchTime scheduler.Seconds) scheduler.Seconds {
	trunkTime := scheduler.Seconds(float64(d.anchorTrunk) + (float64(branchTime)-float64(d.anchorBranch))/d.scale)
	base := float64(d.anchorBranch) + (float64(trunkTime)-float64(d.anchorTrunk))*d.scale
	d.fudge = float64(branchTime) - base
	return trunkTime
}

func (d *branchDriver) Reschedule(when scheduler.Seconds, work func()) {
	d.pendingWhen, d.pendingWork, d.hasPending = when, work, true
	if d.paused {
		return
	}
	d.arm()
}

func (d *branchDriver) Unschedule() {
	d.pendingWork, d.hasPending = nil, false
	d.cancelTrampoline()
}

func (d *branchDriver) cancelTrampoline() {
	if d.tramp != nil {
		d.tramp.Cancel()
		d.tramp = nil
	}
}

func (d *branchDriver) arm() {
	d.cancelTrampoline()
	if !d.hasPending {
		return
	}
	work := d.pendingWork
	d.tramp = d.trunk.CallAt(d.up(d.pendingWhen), func() {
		d.tramp = nil
		d.pendingWork, d.hasPending = nil, false
		work()
	})
}
