package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *WorkerConfig) Validate() error {
	// instance.id may be empty; the worker generates a random owner id.
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if len(c.Queue.Brokers) == 0 {
		return errors.New("queue.brokers is required")
	}
	// Hard startup invariant, not a runtime check: more than one in-flight
	// handler per consumer breaks the serialized tick stream.
	if c.Queue.ConsumerConcurrency != 1 {
		return fmt.Errorf("queue.consumer_concurrency must be exactly 1, got %d", c.Queue.ConsumerConcurrency)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled is true")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if c.Sim.TickInterval <= 0 {
		return errors.New("sim.tick_interval must be positive")
	}
	if c.Sim.MaxTicksPerRun < 1 {
		return errors.New("sim.max_ticks_per_run must be >= 1")
	}
	if c.Sim.ScanEveryTicks < 1 {
		return errors.New("sim.scan_every_ticks must be >= 1")
	}
	if c.Sim.JournalRetentionTicks < 1 {
		return errors.New("sim.journal_retention_ticks must be >= 1")
	}
	switch c.Sim.InvariantPolicy {
	case PolicyLogOnly, PolicyPauseBots, PolicyStop:
	default:
		return fmt.Errorf("sim.invariant_policy must be one of %s, %s, %s; got %q",
			PolicyLogOnly, PolicyPauseBots, PolicyStop, c.Sim.InvariantPolicy)
	}

	if c.Lease.SchedulerTTL <= 0 || c.Lease.ProcessorTTL <= 0 {
		return errors.New("lease TTLs must be positive")
	}
	if c.Lease.Heartbeat <= 0 {
		return errors.New("lease.heartbeat must be positive")
	}
	if c.Lease.Heartbeat >= c.Lease.SchedulerTTL {
		return fmt.Errorf("lease.heartbeat (%s) must be shorter than lease.scheduler_ttl (%s)",
			c.Lease.Heartbeat, c.Lease.SchedulerTTL)
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry delays must satisfy 0 < base_delay <= max_delay")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
