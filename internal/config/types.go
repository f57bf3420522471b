// Package config loads and watches fritterd's configuration file.
//
// YAML and JSON are both accepted: YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) covers both. The manager supports hot
// reload via fsnotify with debounce, content-hash suppression of
// redundant publishes, and a validation hook that rejects a bad file
// before anything observes it.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig `json:"logging"`
	Storage  StorageConfig `json:"storage,omitempty"`
	Metrics  MetricsConfig `json:"metrics,omitempty"`
	Timezone string        `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"
	Jobs     []JobConfig   `json:"jobs"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console *bool          `json:"console,omitempty"` // default true
	File    FileLogConfig  `json:"file,omitempty"`
	Alert   AlertLogConfig `json:"alert,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type AlertLogConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the snapshot backend.
//
// Driver values:
//   - "file": plain snapshot file (atomic rename)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", snapshots are disabled.
type StorageConfig struct {
	Driver      string   `json:"driver,omitempty"`
	Path        string   `json:"path,omitempty"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"` // sqlite only
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:9223
	Pprof   bool   `json:"pprof,omitempty"`
}

// JobConfig describes one recurring job.
//
// Schedule accepts the formats the timetable service understands: cron
// specs (5 or 6 fields, @hourly, @every 55m), Go durations ("55m"), and
// compact HH:MM intervals ("02:30"). Prefix with "cron:" or "interval:"
// to force interpretation.
type JobConfig struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Command  []string `json:"command"`
	Timeout  Duration `json:"timeout,omitempty"` // 0 disables
	Enabled  *bool    `json:"enabled,omitempty"` // default true
}

func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

func (c *LoggingConfig) ConsoleEnabled() bool { return c.Console == nil || *c.Console }

// Validate checks cross-field constraints that the strict decoder cannot.
func (c *Config) Validate() error {
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	seen := map[string]bool{}
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(j.Schedule) == "" {
			return fmt.Errorf("job %q: schedule required", name)
		}
		if len(j.Command) == 0 {
			return fmt.Errorf("job %q: command required", name)
		}
	}
	return nil
}

// Location resolves the configured timezone, defaulting to the host's.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
