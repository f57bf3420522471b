package timetable

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// snapshotDoc is what gets persisted across restarts. Boundaries are
// recomputed from the rules on startup, so the document is a record of
// what was scheduled, not an authority on when.
type snapshotDoc struct {
	SavedAt string        `json:"saved_at"`
	Jobs    []jobSnapshot `json:"jobs"`
}

type jobSnapshot struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Next     string `json:"next"`
}

// JobInfo is the live view of one registered job.
type JobInfo struct {
	Name     string
	Schedule string
	Next     time.Time
}

// Snapshot lists the registered jobs. Must be called via the driver's
// loop (tests) or accepted as advisory (logging).
func (s *Service) Snapshot() []JobInfo {
	now := s.drv.Now()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobInfo{
			Name:     j.cfg.Name,
			Schedule: j.cfg.Schedule,
			Next:     j.rule.Next(now, j.reference),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Service) saveSnapshot() {
	if s.store == nil {
		return
	}
	now := s.drv.Now()
	doc := snapshotDoc{SavedAt: now.Format(time.RFC3339Nano)}
	for _, info := range s.Snapshot() {
		doc.Jobs = append(doc.Jobs, jobSnapshot{
			Name:     info.Name,
			Schedule: info.Schedule,
			Next:     info.Next.Format(time.RFC3339Nano),
		})
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Warn("snapshot encode failed", "err", err)
		return
	}
	if err := s.store.SaveSnapshot(context.Background(), b); err != nil {
		s.log.Warn("snapshot save failed", "err", err)
	}
}

func (s *Service) logRecovered(doc []byte) {
	var snap snapshotDoc
	if err := json.Unmarshal(doc, &snap); err != nil {
		s.log.Warn("snapshot parse failed", "err", err)
		return
	}
	s.log.Info("recovered timetable snapshot", "saved_at", snap.SavedAt, "jobs", len(snap.Jobs))
}
