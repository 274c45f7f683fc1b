package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.MaxRetries != 2 || cfg.Tracing.Exporter != "none" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskschedd.yaml")
	raw := []byte(`
scheduler:
  max_workers: 6
  worker_timeout: 750ms
  retry_initial: 10ms
  retry_max: 1s
log:
  level: debug
tracing:
  exporter: stdout
workload:
  tasks: 12
  failure_rate: 0.5
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKSCHED_MAX_QUEUE_SIZE", "9")
	t.Setenv("TASKSCHED_WORKER_TIMEOUT", "not-a-duration")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := cfg.Scheduler
	if s.MaxWorkers != 6 || s.MaxQueueSize != 9 || s.WorkerTimeout != 750*time.Millisecond {
		t.Fatalf("scheduler = %+v", s)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Service != "taskschedd" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Workload.Tasks != 12 || cfg.Workload.FailureRate != 0.5 {
		t.Fatalf("workload = %+v", cfg.Workload)
	}

	o := cfg.Options()
	if o.MaxWorkers != 6 || o.Retry.Initial != 10*time.Millisecond || o.Retry.Max != time.Second {
		t.Fatalf("options = %+v", o)
	}
}

func TestZeroRetriesMapsToDisabled(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.MaxRetries = 0
	if got := cfg.Options().Retry.MaxRetries; got != -1 {
		t.Fatalf("MaxRetries = %d; want -1 (disabled)", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, false},
		{"rate above one", func(c *Config) { c.Workload.CrashRate = 1.5 }, false},
		{"negative workers", func(c *Config) { c.Scheduler.MaxWorkers = -1 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v; ok want %v", err, tc.ok)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
