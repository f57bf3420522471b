package timetable

import (
	"context"
	"os/exec"
	"reflect"
	"sync"
	"time"

	"fritter/internal/config"
	"fritter/internal/eventbus"
	"fritter/internal/observability"
	"fritter/internal/storage"
	"fritter/pkg/logx"
	"fritter/pkg/repeat"
	"fritter/pkg/scheduler"
)

// LoopDriver is the driver surface the service needs: the fritter driver
// contract plus Invoke, which runs a closure on the goroutine that owns
// the scheduler (drivers/wall in production, an inline fake in tests).
type LoopDriver interface {
	Now() time.Time
	Reschedule(when time.Time, work func())
	Unschedule()
	Invoke(fn func())
}

// Service owns the daemon's scheduler and the jobs registered on it.
// Scheduler state is only touched on the driver's loop goroutine;
// Apply and Stop hop onto it via Invoke.
type Service struct {
	log     logx.Logger
	drv     LoopDriver
	sched   *scheduler.Scheduler[time.Time, time.Duration, scheduler.Call]
	bus     *eventbus.Bus
	store   storage.Store
	metrics *observability.Collector

	runCtx    context.Context
	runCancel context.CancelFunc

	// loop-goroutine state
	loc  *time.Location
	jobs map[string]*jobEntry

	// shared with run goroutines
	mu      sync.Mutex
	running map[string]bool
	history []storage.RunRecord
	histCap int
	wg      sync.WaitGroup
}

type jobEntry struct {
	cfg       config.JobConfig
	parsed    ParsedSchedule
	rule      repeat.RecurrenceRule[time.Time]
	reference time.Time
	timeout   time.Duration
	stop      *repeat.Stopper
}

// New builds the service. bus, store, and metrics may each be nil.
func New(drv LoopDriver, log logx.Logger, bus *eventbus.Bus, store storage.Store, metrics *observability.Collector) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		log:       log,
		drv:       drv,
		sched:     scheduler.New[time.Time, time.Duration, scheduler.Call](drv),
		bus:       bus,
		store:     store,
		metrics:   metrics,
		runCtx:    ctx,
		runCancel: cancel,
		loc:       time.Local,
		jobs:      map[string]*jobEntry{},
		running:   map[string]bool{},
		histCap:   200,
	}
}

// Start restores state from storage (informational: boundaries are
// recomputed from the rules) and registers the initial job set.
func (s *Service) Start(cfg *config.Config) {
	if s.store != nil {
		if doc, ok, err := s.store.LoadSnapshot(context.Background()); err != nil {
			s.log.Warn("snapshot load failed", "err", err)
		} else if ok {
			s.logRecovered(doc)
		}
	}
	s.Apply(cfg)
}

// Apply reconciles the registered jobs with cfg: jobs are upserted or
// removed by name. Safe to call from any goroutine.
func (s *Service) Apply(cfg *config.Config) {
	s.drv.Invoke(func() { s.applyOnLoop(cfg) })
}

// Stop cancels every job and waits for in-flight commands.
func (s *Service) Stop() {
	done := make(chan struct{})
	s.drv.Invoke(func() {
		for name, j := range s.jobs {
			j.stop.Cancel()
			delete(s.jobs, name)
		}
		s.saveSnapshot()
		close(done)
	})
	<-done
	s.runCancel()
	s.wg.Wait()
	s.log.Info("timetable stopped")
}

func (s *Service) applyOnLoop(cfg *config.Config) {
	loc := cfg.Location()
	zoneChanged := loc.String() != s.loc.String()
	s.loc = loc

	seen := map[string]bool{}
	for _, jc := range cfg.Jobs {
		if !jc.IsEnabled() {
			continue
		}
		seen[jc.Name] = true
		if old, ok := s.jobs[jc.Name]; ok {
			// A zone change rebuilds every job so its rule uses the new zone.
			if !zoneChanged && reflect.DeepEqual(old.cfg, jc) {
				continue
			}
			old.stop.Cancel()
			delete(s.jobs, jc.Name)
		}
		if err := s.register(jc); err != nil {
			s.log.Error("job register failed", "job", jc.Name, "schedule", jc.Schedule, "err", err)
		}
	}

	for name, j := range s.jobs {
		if !seen[name] {
			j.stop.Cancel()
			delete(s.jobs, name)
			s.log.Info("job removed", "job", name)
		}
	}

	if s.metrics != nil {
		s.metrics.JobsScheduled.Set(float64(len(s.jobs)))
	}
	s.saveSnapshot()
}

func (s *Service) register(jc config.JobConfig) error {
	parsed, err := ParseSchedule(jc.Schedule)
	if err != nil {
		return err
	}
	rule, err := parsed.Rule(s.loc)
	if err != nil {
		return err
	}
	entry := &jobEntry{
		cfg:       jc,
		parsed:    parsed,
		rule:      rule,
		reference: s.drv.Now(),
		timeout:   jc.Timeout.Std(),
	}
	stop, err := repeat.RepeatedlyAt(s.sched, rule, s.makeWork(entry), entry.reference)
	if err != nil {
		return err
	}
	entry.stop = stop
	s.jobs[jc.Name] = entry

	s.log.Info("job registered",
		"job", jc.Name,
		"schedule", jc.Schedule,
		"next", rule.Next(entry.reference, entry.reference),
		"timeout", entry.timeout,
	)
	return nil
}

// makeWork returns the repeating work for one job: skip if the previous
// run is still executing, otherwise run the command off-loop.
func (s *Service) makeWork(entry *jobEntry) repeat.RepeatingWork {
	name := entry.cfg.Name
	return func(steps uint64, _ scheduler.Canceller) {
		s.mu.Lock()
		busy := s.running[name]
		if !busy {
			s.running[name] = true
		}
		s.mu.Unlock()

		if busy {
			s.log.Warn("job still running; skipping boundary", "job", name, "steps", steps)
			s.publish(eventbus.JobMissed, eventbus.JobRun{Job: name, Steps: steps + 1})
			return
		}
		if steps > 1 {
			s.log.Warn("job missed boundaries", "job", name, "steps", steps)
		}

		s.wg.Add(1)
		go s.execute(entry, steps)
	}
}

func (s *Service) execute(entry *jobEntry, steps uint64) {
	name := entry.cfg.Name
	defer s.wg.Done()

	start := time.Now()
	s.publish(eventbus.JobStarted, eventbus.JobRun{Job: name, Steps: steps})

	ctx := s.runCtx
	var cancel context.CancelFunc
	if entry.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, entry.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, entry.cfg.Command[0], entry.cfg.Command[1:]...)
	err := cmd.Run()
	took := time.Since(start)

	rec := storage.RunRecord{At: start, Job: name, Steps: steps, Duration: took}
	if err != nil {
		rec.Error = err.Error()
		s.log.Warn("job failed", "job", name, "took", took, "err", err)
	} else {
		s.log.Info("job ok", "job", name, "took", took)
	}

	s.finishRun(name, rec)
	if s.store != nil {
		if serr := s.store.AppendRun(context.Background(), rec); serr != nil {
			s.log.Warn("run log append failed", "job", name, "err", serr)
		}
	}
	s.publish(eventbus.JobFinished, eventbus.JobRun{Job: name, Steps: steps, Duration: took, Error: rec.Error})
}

func (s *Service) publish(kind string, run eventbus.JobRun) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: kind, Data: run})
	}
}

// finishRun clears the overlap flag and appends history in one step, so
// anyone who observes the record also observes the job as idle.
func (s *Service) finishRun(name string, rec storage.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.history = append(s.history, rec)
	if s.histCap > 0 && len(s.history) > s.histCap {
		s.history = s.history[len(s.history)-s.histCap:]
	}
}

// History returns a copy of the most recent run records.
func (s *Service) History() []storage.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.RunRecord, len(s.history))
	copy(out, s.history)
	return out
}
