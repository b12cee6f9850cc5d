package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
instance:
  id: test-worker
database:
  host: localhost
  name: corpsim_test
  user: testuser
  password: testpass
queue:
  brokers:
    - localhost:9092
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-worker" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-worker")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if len(cfg.Queue.Brokers) != 1 || cfg.Queue.Brokers[0] != "localhost:9092" {
		t.Errorf("Queue.Brokers = %v, want [localhost:9092]", cfg.Queue.Brokers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-worker
database:
  host: localhost
  name: corpsim_test
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Queue.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("Queue.TopicPrefix = %q, want %q", cfg.Queue.TopicPrefix, DefaultTopicPrefix)
	}
	if cfg.Queue.ConsumerConcurrency != 1 {
		t.Errorf("Queue.ConsumerConcurrency = %d, want 1", cfg.Queue.ConsumerConcurrency)
	}
	if cfg.Sim.TickInterval != DefaultTickInterval {
		t.Errorf("Sim.TickInterval = %v, want %v", cfg.Sim.TickInterval, DefaultTickInterval)
	}
	if cfg.Sim.InvariantPolicy != PolicyLogOnly {
		t.Errorf("Sim.InvariantPolicy = %q, want %q", cfg.Sim.InvariantPolicy, PolicyLogOnly)
	}
	if cfg.Lease.SchedulerTTL != DefaultSchedulerTTL {
		t.Errorf("Lease.SchedulerTTL = %v, want %v", cfg.Lease.SchedulerTTL, DefaultSchedulerTTL)
	}
	if cfg.Retry.MaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("Retry.MaxAttempts = %d, want %d", cfg.Retry.MaxAttempts, DefaultRetryMaxAttempts)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Queue.TickTopic() != "corpsim.tick-jobs" {
		t.Errorf("TickTopic() = %q, want %q", cfg.Queue.TickTopic(), "corpsim.tick-jobs")
	}
}

func TestValidateRejections(t *testing.T) {
	valid := func() *WorkerConfig {
		cfg := &WorkerConfig{
			Database: DBConfig{
				Host: "localhost", Name: "db", User: "u", Password: "p",
				MaxConns: 5, MinConns: 1,
			},
			Queue: QueueConfig{
				Brokers: []string{"localhost:9092"}, ConsumerConcurrency: 1,
			},
			HTTP: HTTPConfig{Port: 8080},
			Sim: SimConfig{
				TickInterval: 30 * time.Second, MaxTicksPerRun: 5,
				ScanEveryTicks: 10, JournalRetentionTicks: 1000,
				InvariantPolicy: PolicyLogOnly,
			},
			Lease: LeaseConfig{
				SchedulerTTL: time.Minute, ProcessorTTL: 15 * time.Second,
				Heartbeat: 20 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second,
			},
		}
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config invalid: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantSub string
	}{
		{
			name:    "missing db host",
			mutate:  func(c *WorkerConfig) { c.Database.Host = "" },
			wantSub: "database.host",
		},
		{
			name:    "no brokers",
			mutate:  func(c *WorkerConfig) { c.Queue.Brokers = nil },
			wantSub: "queue.brokers",
		},
		{
			name:    "consumer concurrency above one",
			mutate:  func(c *WorkerConfig) { c.Queue.ConsumerConcurrency = 4 },
			wantSub: "consumer_concurrency",
		},
		{
			name:    "redis enabled without addr",
			mutate:  func(c *WorkerConfig) { c.Redis.Enabled = true },
			wantSub: "redis.addr",
		},
		{
			name:    "bad policy",
			mutate:  func(c *WorkerConfig) { c.Sim.InvariantPolicy = "explode" },
			wantSub: "invariant_policy",
		},
		{
			name:    "heartbeat at scheduler ttl",
			mutate:  func(c *WorkerConfig) { c.Lease.Heartbeat = time.Minute },
			wantSub: "heartbeat",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *WorkerConfig) { c.Sim.TickInterval = 0 },
			wantSub: "tick_interval",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *WorkerConfig) { c.Retry.MaxDelay = time.Millisecond },
			wantSub: "delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}
