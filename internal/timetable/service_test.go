package timetable

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fritter/internal/config"
	"fritter/internal/eventbus"
	"fritter/internal/storage"
	"fritter/pkg/drivers/civil"
	"fritter/pkg/drivers/memory"
	"fritter/pkg/logx"
	"fritter/pkg/scheduler"
)

// testDriver runs Invoke inline: tests own the loop.
type testDriver struct {
	*civil.Driver
}

func (d testDriver) Invoke(fn func()) { fn() }

var testEpoch = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store storage.Store, bus *eventbus.Bus) (*memory.Driver, *Service) {
	t.Helper()
	mem := memory.NewAt(civil.ToSeconds(testEpoch))
	drv := testDriver{civil.New(mem, time.UTC)}
	return mem, New(drv, logx.Nop(), bus, store, nil)
}

func jobCfg(name, schedule string, command ...string) config.JobConfig {
	if len(command) == 0 {
		command = []string{"true"}
	}
	return config.JobConfig{Name: name, Schedule: schedule, Command: command}
}

func waitHistory(t *testing.T, s *Service, want int) []storage.RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h := s.History(); len(h) >= want {
			return h
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("history never reached %d records: %v", want, s.History())
	return nil
}

func TestIntervalJobFiresAtBoundary(t *testing.T) {
	t.Parallel()
	mem, svc := newTestService(t, nil, nil)
	svc.Start(&config.Config{Timezone: "UTC", Jobs: []config.JobConfig{jobCfg("tick", "1m")}})

	if h := svc.History(); len(h) != 0 {
		t.Fatalf("history before first boundary: %v", h)
	}

	mem.AdvanceBy(60.0)
	h := waitHistory(t, svc, 1)
	if h[0].Job != "tick" || h[0].Steps != 1 || h[0].Error != "" {
		t.Fatalf("run record = %+v", h[0])
	}

	mem.AdvanceBy(60.0)
	waitHistory(t, svc, 2)
	svc.Stop()
}

func TestFailingJobRecordsError(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	mem, svc := newTestService(t, nil, bus)
	svc.Start(&config.Config{Jobs: []config.JobConfig{jobCfg("broken", "30s", "false")}})

	mem.AdvanceBy(30.0)
	h := waitHistory(t, svc, 1)
	if h[0].Error == "" {
		t.Fatalf("failed run recorded no error: %+v", h[0])
	}

	var finished *eventbus.JobRun
	timeout := time.After(5 * time.Second)
	for finished == nil {
		select {
		case ev := <-events:
			if ev.Type == eventbus.JobFinished {
				run := ev.Data.(eventbus.JobRun)
				finished = &run
			}
		case <-timeout:
			t.Fatal("no JobFinished event")
		}
	}
	if finished.Job != "broken" || finished.Error == "" {
		t.Fatalf("JobFinished = %+v", finished)
	}
	svc.Stop()
}

func TestApplyUpsertsAndRemovesByName(t *testing.T) {
	t.Parallel()
	mem, svc := newTestService(t, nil, nil)
	svc.Start(&config.Config{Jobs: []config.JobConfig{
		jobCfg("alpha", "1m"),
		jobCfg("beta", "2m"),
	}})

	snap := svc.Snapshot()
	if len(snap) != 2 || snap[0].Name != "alpha" || snap[1].Name != "beta" {
		t.Fatalf("Snapshot() = %+v", snap)
	}
	if want := testEpoch.Add(time.Minute); !snap[0].Next.Equal(want) {
		t.Fatalf("alpha next = %v, want %v", snap[0].Next, want)
	}

	// beta changes schedule, alpha disappears, gamma arrives.
	svc.Apply(&config.Config{Jobs: []config.JobConfig{
		jobCfg("beta", "5m"),
		jobCfg("gamma", "1m"),
	}})

	snap = svc.Snapshot()
	if len(snap) != 2 || snap[0].Name != "beta" || snap[1].Name != "gamma" {
		t.Fatalf("Snapshot() after apply = %+v", snap)
	}
	if want := testEpoch.Add(5 * time.Minute); !snap[0].Next.Equal(want) {
		t.Fatalf("beta next = %v, want %v (new schedule)", snap[0].Next, want)
	}

	// alpha's old repeater must be dead: advancing its old boundary
	// produces no run.
	mem.AdvanceBy(60.0)
	waitHistory(t, svc, 1) // gamma at +1m
	time.Sleep(20 * time.Millisecond)
	for _, rec := range svc.History() {
		if rec.Job == "alpha" {
			t.Fatalf("removed job still ran: %+v", rec)
		}
	}
	svc.Stop()
}

func TestDisabledJobsAreSkipped(t *testing.T) {
	t.Parallel()
	off := false
	cfg := jobCfg("dormant", "1m")
	cfg.Enabled = &off

	_, svc := newTestService(t, nil, nil)
	svc.Start(&config.Config{Jobs: []config.JobConfig{cfg}})
	if snap := svc.Snapshot(); len(snap) != 0 {
		t.Fatalf("disabled job registered: %+v", snap)
	}
	svc.Stop()
}

func TestSnapshotPersistedToStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "state")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()

	_, svc := newTestService(t, st, nil)
	svc.Start(&config.Config{Jobs: []config.JobConfig{jobCfg("nightly", "cron:0 3 * * *")}})

	doc, ok, err := st.LoadSnapshot(context.Background())
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot = ok=%v err=%v", ok, err)
	}
	if !strings.Contains(string(doc), "nightly") {
		t.Fatalf("snapshot missing job:\n%s", doc)
	}
	svc.Stop()

	// A fresh service recovers without error from the saved doc.
	_, svc2 := newTestService(t, st, nil)
	svc2.Start(&config.Config{Jobs: []config.JobConfig{jobCfg("nightly", "cron:0 3 * * *")}})
	svc2.Stop()
}

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every:90s", kind: SpecInterval, source: "duration", duration: 90 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "24:00", "interval:0s"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) accepted", raw)
		}
	}
}

var _ scheduler.TimeDriver[time.Time] = testDriver{}
