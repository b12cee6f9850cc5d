package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
	DefaultTopicPrefix           = "corpsim"
	DefaultGroupID               = "corpsim-workers"
	DefaultHTTPPort              = 8080
	DefaultTickInterval          = 30 * time.Second
	DefaultMaxTicksPerRun        = 5
	DefaultScanEveryTicks        = 10
	DefaultScanIssueLimit        = 100
	DefaultJournalRetentionTicks = 1000
	DefaultInvariantPolicy       = PolicyLogOnly
	DefaultSchedulerTTL          = 60 * time.Second
	DefaultProcessorTTL          = 15 * time.Second
	DefaultLeaseHeartbeat        = 20 * time.Second
	DefaultRetryMaxAttempts      = 5
	DefaultRetryBaseDelay        = 50 * time.Millisecond
	DefaultRetryMaxDelay         = 2 * time.Second
)

// Invariant policy names.
const (
	PolicyLogOnly   = "log_only"
	PolicyPauseBots = "pause_bots"
	PolicyStop      = "stop"
)

func (c *WorkerConfig) applyDefaults() {
	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Queue defaults. ConsumerConcurrency is intentionally not defaulted
	// away from zero only when explicitly set wrong; zero means "use 1".
	if c.Queue.TopicPrefix == "" {
		c.Queue.TopicPrefix = DefaultTopicPrefix
	}
	if c.Queue.GroupID == "" {
		c.Queue.GroupID = DefaultGroupID
	}
	if c.Queue.ConsumerConcurrency == 0 {
		c.Queue.ConsumerConcurrency = 1
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}

	// Sim defaults
	if c.Sim.TickInterval == 0 {
		c.Sim.TickInterval = DefaultTickInterval
	}
	if c.Sim.MaxTicksPerRun == 0 {
		c.Sim.MaxTicksPerRun = DefaultMaxTicksPerRun
	}
	if c.Sim.ScanEveryTicks == 0 {
		c.Sim.ScanEveryTicks = DefaultScanEveryTicks
	}
	if c.Sim.ScanIssueLimit == 0 {
		c.Sim.ScanIssueLimit = DefaultScanIssueLimit
	}
	if c.Sim.JournalRetentionTicks == 0 {
		c.Sim.JournalRetentionTicks = DefaultJournalRetentionTicks
	}
	if c.Sim.InvariantPolicy == "" {
		c.Sim.InvariantPolicy = DefaultInvariantPolicy
	}

	// Lease defaults
	if c.Lease.SchedulerTTL == 0 {
		c.Lease.SchedulerTTL = DefaultSchedulerTTL
	}
	if c.Lease.ProcessorTTL == 0 {
		c.Lease.ProcessorTTL = DefaultProcessorTTL
	}
	if c.Lease.Heartbeat == 0 {
		c.Lease.Heartbeat = DefaultLeaseHeartbeat
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultRetryMaxDelay
	}
}
