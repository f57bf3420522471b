// Package storage persists the timetable snapshot and the job run log
// across daemon restarts.
package storage

import (
	"context"
	"errors"
	"strings"

	"fritter/pkg/logx"
)

// Store is the minimal persistence API the timetable service uses.
type Store interface {
	SaveSnapshot(ctx context.Context, doc []byte) error
	LoadSnapshot(ctx context.Context) (doc []byte, ok bool, err error)
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
