// Package config loads taskschedd settings from a YAML file and
// TASKSCHED_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	ts "github.com/azargarov/tasksched"
)

type Config struct {
	Scheduler Scheduler `yaml:"scheduler"`
	Log       Log       `yaml:"log"`
	Tracing   Tracing   `yaml:"tracing"`
	Workload  Workload  `yaml:"workload"`
}

type Scheduler struct {
	MaxWorkers     int           `yaml:"max_workers"`
	InitialWorkers int           `yaml:"initial_workers"`
	MaxQueueSize   int           `yaml:"max_queue_size"`
	WorkerTimeout  time.Duration `yaml:"worker_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryInitial   time.Duration `yaml:"retry_initial"`
	RetryMax       time.Duration `yaml:"retry_max"`
	AgingRate      float64       `yaml:"aging_rate"`
	PinWorkers     bool          `yaml:"pin_workers"`
}

type Log struct {
	Service    string `yaml:"service"`
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Tracing struct {
	// Exporter is "none" or "stdout".
	Exporter string `yaml:"exporter"`
}

// Workload describes the synthetic batch run by taskschedd.
type Workload struct {
	Tasks       int           `yaml:"tasks"`
	MaxPriority int           `yaml:"max_priority"`
	Rounds      int           `yaml:"rounds"`
	FailureRate float64       `yaml:"failure_rate"`
	HangRate    float64       `yaml:"hang_rate"`
	CrashRate   float64       `yaml:"crash_rate"`
	Deadline    time.Duration `yaml:"deadline"`
}

func Default() Config {
	return Config{
		Scheduler: Scheduler{
			MaxQueueSize:  ts.DefaultMaxQueueSize,
			WorkerTimeout: 2 * time.Second,
			MaxRetries:    ts.DefaultMaxRetries,
		},
		Log: Log{
			Service:    "taskschedd",
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Tracing: Tracing{Exporter: "none"},
		Workload: Workload{
			Tasks:       200,
			MaxPriority: 5,
			Rounds:      20000,
			FailureRate: 0.1,
			HangRate:    0.01,
			CrashRate:   0.005,
			Deadline:    time.Minute,
		},
	}
}

// Load reads path (if non-empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	s := &c.Scheduler
	s.MaxWorkers = getenvInt("TASKSCHED_MAX_WORKERS", s.MaxWorkers)
	s.InitialWorkers = getenvInt("TASKSCHED_INITIAL_WORKERS", s.InitialWorkers)
	s.MaxQueueSize = getenvInt("TASKSCHED_MAX_QUEUE_SIZE", s.MaxQueueSize)
	s.WorkerTimeout = getenvDuration("TASKSCHED_WORKER_TIMEOUT", s.WorkerTimeout)
	s.MaxRetries = getenvInt("TASKSCHED_MAX_RETRIES", s.MaxRetries)
	s.RetryInitial = getenvDuration("TASKSCHED_RETRY_INITIAL", s.RetryInitial)
	s.RetryMax = getenvDuration("TASKSCHED_RETRY_MAX", s.RetryMax)
	s.PinWorkers = getenvBool("TASKSCHED_PIN_WORKERS", s.PinWorkers)

	c.Log.Level = getenv("TASKSCHED_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("TASKSCHED_LOG_FORMAT", c.Log.Format)
	c.Log.File = getenv("TASKSCHED_LOG_FILE", c.Log.File)
	c.Tracing.Exporter = getenv("TASKSCHED_OTEL_EXPORTER", c.Tracing.Exporter)
	c.Workload.Tasks = getenvInt("TASKSCHED_TASKS", c.Workload.Tasks)
}

func (c Config) Validate() error {
	if c.Scheduler.MaxWorkers < 0 || c.Scheduler.MaxQueueSize < 0 {
		return fmt.Errorf("config: negative scheduler limits")
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("config: unknown tracing exporter %q", c.Tracing.Exporter)
	}
	for name, r := range map[string]float64{
		"failure_rate": c.Workload.FailureRate,
		"hang_rate":    c.Workload.HangRate,
		"crash_rate":   c.Workload.CrashRate,
	} {
		if r < 0 || r > 1 {
			return fmt.Errorf("config: workload %s %v out of [0,1]", name, r)
		}
	}
	return nil
}

// Options maps the scheduler section onto tasksched.Options. Logger,
// tracer and hooks are left for the caller.
func (c Config) Options() ts.Options {
	s := c.Scheduler
	retries := s.MaxRetries
	if retries == 0 {
		retries = -1
	}
	return ts.Options{
		MaxWorkers:     s.MaxWorkers,
		InitialWorkers: s.InitialWorkers,
		MaxQueueSize:   s.MaxQueueSize,
		WorkerTimeout:  s.WorkerTimeout,
		Retry: ts.RetryPolicy{
			MaxRetries: retries,
			Initial:    s.RetryInitial,
			Max:        s.RetryMax,
		},
		AgingRate:  s.AgingRate,
		PinWorkers: s.PinWorkers,
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
