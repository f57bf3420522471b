// Package observability exposes Prometheus metrics for the timetable
// daemon and serves them (plus optional pprof endpoints) over HTTP.
package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"fritter/internal/eventbus"
)

// Collector bundles the daemon's scheduler metrics, registered against
// an injectable registerer so tests can use a private registry.
type Collector struct {
	gatherer prometheus.Gatherer

	JobRuns       *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	MissedSteps   *prometheus.CounterVec
	JobsScheduled prometheus.Gauge
}

// NewCollector registers the job metrics against reg (the default
// registerer when nil).
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fritter_job_runs_total",
		Help: "Completed job runs by outcome.",
	}, []string{"job", "result"})
	runs, err := registerCounterVec(reg, runs, "fritter_job_runs_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fritter_job_run_duration_seconds",
		Help:    "Duration of job command executions.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
	}, []string{"job"})
	duration, err = registerHistogramVec(reg, duration, "fritter_job_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	missed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fritter_job_missed_steps_total",
		Help: "Recurrence boundaries that elapsed without their own run (steps beyond 1).",
	}, []string{"job"})
	missed, err = registerCounterVec(reg, missed, "fritter_job_missed_steps_total")
	if err != nil {
		return nil, err
	}

	scheduled := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fritter_jobs_scheduled",
		Help: "Jobs currently registered with the timetable.",
	})
	scheduled, err = registerGauge(reg, scheduled, "fritter_jobs_scheduled")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		JobRuns:       runs,
		JobDuration:   duration,
		MissedSteps:   missed,
		JobsScheduled: scheduled,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the
// collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Observe consumes job events from the bus until ctx ends.
func (c *Collector) Observe(ctx context.Context, bus *eventbus.Bus) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.record(ev)
		}
	}
}

func (c *Collector) record(ev eventbus.Event) {
	run, ok := ev.Data.(eventbus.JobRun)
	if !ok {
		return
	}
	switch ev.Type {
	case eventbus.JobFinished:
		result := "ok"
		if run.Error != "" {
			result = "error"
		}
		c.JobRuns.WithLabelValues(run.Job, result).Inc()
		c.JobDuration.WithLabelValues(run.Job).Observe(run.Duration.Seconds())
		if run.Steps > 1 {
			c.MissedSteps.WithLabelValues(run.Job).Add(float64(run.Steps - 1))
		}
	case eventbus.JobMissed:
		if run.Steps > 1 {
			c.MissedSteps.WithLabelValues(run.Job).Add(float64(run.Steps - 1))
		}
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("registering %s: %w", name, err)
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("registering %s: %w", name, err)
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("registering %s: %w", name, err)
	}
	return g, nil
}
