package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const yamlConfig = `
logging:
  level: debug
  file:
    enabled: true
    path: /tmp/fritterd.log
storage:
  driver: sqlite
  path: /tmp/fritterd.db
  busy_timeout: 2s
timezone: UTC
jobs:
  - name: heartbeat
    schedule: "1m"
    command: ["true"]
  - name: nightly
    schedule: "cron:0 3 * * *"
    command: ["/usr/local/bin/backup", "--full"]
    timeout: 30m
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", yamlConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.File.Enabled {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if len(cfg.Jobs) != 2 || cfg.Jobs[1].Name != "nightly" {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	if !cfg.Jobs[0].IsEnabled() {
		t.Fatal("jobs default to disabled")
	}
	if d := cfg.Jobs[1].Timeout.Std(); d != 30*time.Minute {
		t.Fatalf("timeout = %v, want 30m", d)
	}
}

func TestParseJSONEquivalent(t *testing.T) {
	t.Parallel()
	jsonConfig := `{
  "logging": {"level": "debug", "file": {"enabled": true, "path": "/tmp/fritterd.log"}},
  "storage": {"driver": "sqlite", "path": "/tmp/fritterd.db", "busy_timeout": "2s"},
  "timezone": "UTC",
  "jobs": [
    {"name": "heartbeat", "schedule": "1m", "command": ["true"]},
    {"name": "nightly", "schedule": "cron:0 3 * * *", "command": ["/usr/local/bin/backup", "--full"], "timeout": "30m"}
  ]
}`
	ym := NewManager(writeFile(t, "config.yaml", yamlConfig))
	ycfg, err := ym.Load()
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	jm := NewManager(writeFile(t, "config.json", jsonConfig))
	jcfg, err := jm.Load()
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if hashConfig(ycfg) != hashConfig(jcfg) {
		t.Fatalf("yaml and json parse differently:\n%+v\n%+v", ycfg, jcfg)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", "bogus_key: 1\njobs: []\nlogging: {}\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateRejectsBadJobs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `jobs: [{schedule: "1m", command: ["true"]}]`},
		{"missing schedule", `jobs: [{name: a, command: ["true"]}]`},
		{"missing command", `jobs: [{name: a, schedule: "1m"}]`},
		{"duplicate name", `jobs: [{name: a, schedule: "1m", command: ["x"]}, {name: a, schedule: "2m", command: ["y"]}]`},
		{"bad timeout", `jobs: [{name: a, schedule: "1m", command: ["x"], timeout: nope}]`},
		{"bad timezone", "timezone: Mars/Olympus\njobs: []"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeFile(t, "config.yaml", tt.body))
			if _, err := m.Load(); err == nil {
				t.Fatal("bad config accepted")
			}
		})
	}
}

func TestReloadPublishesOnlyOnChange(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", yamlConfig)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(4)
	defer m.Unsubscribe(ch)

	m.reloadOnce() // identical content: no publish
	select {
	case cfg := <-ch:
		t.Fatalf("unchanged reload published %+v", cfg)
	default:
	}

	if err := os.WriteFile(path, []byte(yamlConfig+"metrics: {enabled: true}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m.reloadOnce()
	select {
	case cfg := <-ch:
		if !cfg.Metrics.Enabled {
			t.Fatalf("published config missing change: %+v", cfg.Metrics)
		}
	default:
		t.Fatal("changed reload did not publish")
	}

	if err := os.WriteFile(path, []byte("jobs: [{name: a}]"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m.reloadOnce() // invalid: rejected, no publish, old config kept
	select {
	case cfg := <-ch:
		t.Fatalf("invalid reload published %+v", cfg)
	default:
	}
	if got := m.Get(); got == nil || !got.Metrics.Enabled {
		t.Fatal("rejected reload clobbered committed config")
	}
}
