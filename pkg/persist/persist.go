// Package persist serializes a civil-time scheduler's pending calls to
// JSON and loads them back.
//
// Work that wants to be persisted implements Persistable: a stable type
// code plus a payload map with primitive leaves. A Registry maps type
// codes to loader functions; loaders receive a caller-supplied context
// value (database handles, API clients, whatever reconstructed work
// needs) and the scheduler being populated, so loaded work can schedule
// follow-ups.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"fritter/pkg/scheduler"
)

// Persistable is the contract a persisted work item satisfies. TypeCode
// must be stable across releases; Payload must round-trip through JSON.
type Persistable interface {
	scheduler.Invocable
	TypeCode() string
	Payload() (map[string]any, error)
}

// Scheduler is a civil-time scheduler restricted to persistable work.
type Scheduler = scheduler.Scheduler[time.Time, time.Duration, Persistable]

// FutureCall is the handle type issued by a persistable Scheduler.
type FutureCall = scheduler.FutureCall[time.Time, time.Duration, Persistable]

// NewScheduler creates a persistable scheduler on the given driver.
func NewScheduler(driver scheduler.TimeDriver[time.Time]) *Scheduler {
	return scheduler.New[time.Time, time.Duration, Persistable](driver)
}

// LoadFunc reconstructs one work item from its saved payload.
type LoadFunc[C any] func(ctx C, sched *Scheduler, data map[string]any) (Persistable, error)

// Registry resolves type codes to loaders. C is the load-context type
// handed through to every loader.
type Registry[C any] struct {
	loaders map[string]LoadFunc[C]
}

func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{loaders: map[string]LoadFunc[C]{}}
}

// Register installs the loader for a type code. Registering the same
// code twice is a programming error and is reported as one.
func (r *Registry[C]) Register(typeCode string, load LoadFunc[C]) error {
	if _, dup := r.loaders[typeCode]; dup {
		return fmt.Errorf("type code %q registered twice", typeCode)
	}
	r.loaders[typeCode] = load
	return nil
}

type document struct {
	Version int         `json:"version"`
	Calls   []savedCall `json:"scheduledCalls"`
}

type savedCall struct {
	When string         `json:"when"`
	Zone string         `json:"tz"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Save serializes the scheduler's live calls in (deadline, id) order.
// Canceled records are omitted; ids are not saved, Load reassigns fresh
// ones in the same order.
func Save(s *Scheduler) ([]byte, error) {
	doc := document{Version: 1}
	for _, q := range s.Pending() {
		data, err := q.What.Payload()
		if err != nil {
			return nil, fmt.Errorf("serializing %q call: %w", q.What.TypeCode(), err)
		}
		doc.Calls = append(doc.Calls, savedCall{
			When: q.When.Format(time.RFC3339Nano),
			Zone: q.When.Location().String(),
			Type: q.What.TypeCode(),
			Data: data,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Load builds a fresh scheduler on driver and re-inserts every saved
// call, preserving deadline order (and therefore relative order among
// equal deadlines).
func Load[C any](r *Registry[C], blob []byte, driver scheduler.TimeDriver[time.Time], ctx C) (*Scheduler, error) {
	var doc document
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("parsing saved scheduler: %w", err)
	}
	s := NewScheduler(driver)
	for _, c := range doc.Calls {
		load, ok := r.loaders[c.Type]
		if !ok {
			return nil, fmt.Errorf("no loader registered for type %q", c.Type)
		}
		loc, err := time.LoadLocation(c.Zone)
		if err != nil {
			return nil, fmt.Errorf("call of type %q in unknown zone %q: %w", c.Type, c.Zone, err)
		}
		when, err := time.ParseInLocation(time.RFC3339Nano, c.When, loc)
		if err != nil {
			return nil, fmt.Errorf("call of type %q has bad deadline %q: %w", c.Type, c.When, err)
		}
		work, err := load(ctx, s, c.Data)
		if err != nil {
			return nil, fmt.Errorf("loading %q call: %w", c.Type, err)
		}
		s.CallAt(when.In(loc), work)
	}
	return s, nil
}

// Func wraps a plain function as Persistable work with an empty payload,
// for work whose identity is fully described by its type code.
func Func(typeCode string, fn func()) Persistable {
	return funcWork{code: typeCode, fn: fn}
}

type funcWork struct {
	code string
	fn   func()
}

func (f funcWork) Run()                             { f.fn() }
func (f funcWork) TypeCode() string                 { return f.code }
func (f funcWork) Payload() (map[string]any, error) { return map[string]any{}, nil }
