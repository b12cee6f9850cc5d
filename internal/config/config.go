package config

import "time"

// WorkerConfig is the root configuration for a worker instance.
type WorkerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Database DBConfig       `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sim      SimConfig      `yaml:"sim"`
	Lease    LeaseConfig    `yaml:"lease"`
	Retry    RetryConfig    `yaml:"retry"`
}

// InstanceConfig identifies this worker.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// QueueConfig holds the Kafka job queue settings.
type QueueConfig struct {
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix"`
	GroupID     string   `yaml:"group_id"`
	// ConsumerConcurrency must be exactly 1. Correctness depends on a
	// single serialized stream of tick-advance attempts per consumer;
	// scale out by adding instances, not by raising this.
	ConsumerConcurrency int `yaml:"consumer_concurrency"`
}

// TickTopic returns the topic carrying tick-advance jobs.
func (q QueueConfig) TickTopic() string {
	return q.TopicPrefix + ".tick-jobs"
}

// RedisConfig holds the optional last-price cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig holds the health/ops HTTP server settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// SimConfig holds tick processing settings.
type SimConfig struct {
	TickInterval          time.Duration `yaml:"tick_interval"`
	MaxTicksPerRun        int           `yaml:"max_ticks_per_run"`
	ScanEveryTicks        int64         `yaml:"scan_every_ticks"`
	ScanIssueLimit        int           `yaml:"scan_issue_limit"`
	JournalRetentionTicks int64         `yaml:"journal_retention_ticks"`
	InvariantPolicy       string        `yaml:"invariant_policy"` // log_only, pause_bots, stop
}

// LeaseConfig holds lease TTLs and the scheduler heartbeat.
type LeaseConfig struct {
	SchedulerTTL time.Duration `yaml:"scheduler_ttl"`
	ProcessorTTL time.Duration `yaml:"processor_ttl"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
}

// RetryConfig bounds optimistic-conflict retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}
