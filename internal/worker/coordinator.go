// Package worker runs the coordination loops of one worker instance:
// scheduler election, periodic job enqueueing, single-concurrency job
// consumption, invariant policy, and journal pruning.
//
// Every processing-enabled instance consumes jobs with concurrency fixed
// at one. Horizontal scale comes from adding more single-concurrency
// consumers; contention is resolved only through the processor lease and
// the optimistic lock on the world clock.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corpsim/corpsim/internal/invariant"
	"github.com/corpsim/corpsim/internal/lease"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/pricecache"
	"github.com/corpsim/corpsim/internal/queue"
	"github.com/corpsim/corpsim/internal/store"
	"github.com/corpsim/corpsim/internal/stream"
	"github.com/corpsim/corpsim/internal/tick"
)

// Config holds coordinator settings.
type Config struct {
	TickInterval          time.Duration
	MaxTicksPerRun        int
	ScanEveryTicks        int64
	ScanIssueLimit        int
	JournalRetentionTicks int64
	Policy                Policy
	SchedulerTTL          time.Duration
	Heartbeat             time.Duration
	Retry                 tick.RetryConfig
}

// Coordinator wires the store, lease manager, tick engine, scanner, and
// queue into the worker loops.
type Coordinator struct {
	cfg     Config
	store   store.Store
	leases  *lease.Manager
	engine  *tick.Engine
	scanner *invariant.Scanner
	queue   queue.Queue
	prices  *pricecache.Cache // optional
	hub     *stream.Hub       // optional
	logger  *slog.Logger

	ctx            context.Context
	cancel         context.CancelFunc
	consumerCtx    context.Context
	consumerCancel context.CancelFunc
	wg             sync.WaitGroup

	ticksSinceScan int64
}

// New creates a coordinator. prices and hub may be nil.
func New(cfg Config, st store.Store, leases *lease.Manager, engine *tick.Engine,
	scanner *invariant.Scanner, q queue.Queue, prices *pricecache.Cache,
	hub *stream.Hub, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		store:   st,
		leases:  leases,
		engine:  engine,
		scanner: scanner,
		queue:   q,
		prices:  prices,
		hub:     hub,
		logger:  logger,
	}
}

// Start launches the scheduler election loop and the job consumer.
func (c *Coordinator) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.consumerCtx, c.consumerCancel = context.WithCancel(c.ctx)

	c.wg.Add(2)
	go c.electionLoop()
	go c.consumeLoop()

	c.logger.Info("worker coordinator started",
		"owner_id", c.leases.OwnerID(),
		"tick_interval", c.cfg.TickInterval,
		"max_ticks_per_run", c.cfg.MaxTicksPerRun,
	)
	return nil
}

// Stop shuts both loops down.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("worker coordinator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Scheduler election and enqueueing
// -----------------------------------------------------------------------------

// electionLoop keeps trying for the scheduler lease; the winner enqueues
// periodic tick jobs until it loses the lease, then the loop resumes
// contending. Losers retry on the heartbeat cadence.
func (c *Coordinator) electionLoop() {
	defer c.wg.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}

		won, err := c.leases.TryAcquire(c.ctx, lease.Scheduler, c.cfg.SchedulerTTL, true)
		if err != nil {
			c.logger.Error("scheduler election failed", "error", err)
		} else if won {
			c.logger.Info("scheduler lease won", "owner_id", c.leases.OwnerID())
			c.runScheduler()
			c.logger.Info("scheduler role given up")
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.Heartbeat):
		}
	}
}

// runScheduler enqueues one tick job per interval and renews the lease on
// the heartbeat. Returns when the lease is lost or the context ends.
func (c *Coordinator) runScheduler() {
	enqueue := time.NewTicker(c.cfg.TickInterval)
	defer enqueue.Stop()
	heartbeat := time.NewTicker(c.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.ctx.Done():
			if err := c.leases.Release(context.WithoutCancel(c.ctx), lease.Scheduler); err != nil {
				c.logger.Warn("scheduler lease release failed", "error", err)
			}
			return

		case <-enqueue.C:
			job := queue.Job{
				ExecutionKey: uuid.NewString(),
				Ticks:        c.cfg.MaxTicksPerRun,
				EnqueuedAt:   time.Now().UTC(),
			}
			if err := c.queue.Enqueue(c.ctx, job); err != nil {
				c.logger.Error("enqueue tick job failed", "error", err)
				continue
			}
			c.logger.Debug("tick job enqueued", "execution_key", job.ExecutionKey, "ticks", job.Ticks)

		case <-heartbeat.C:
			ok, err := c.leases.Renew(c.ctx, lease.Scheduler, c.cfg.SchedulerTTL)
			if err != nil {
				c.logger.Error("scheduler lease renew failed", "error", err)
				return
			}
			if !ok {
				c.logger.Warn("scheduler lease lost to another owner")
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Job consumption
// -----------------------------------------------------------------------------

func (c *Coordinator) consumeLoop() {
	defer c.wg.Done()

	err := c.queue.Consume(c.consumerCtx, c.HandleJob)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("job consumer exited", "error", err)
	}
}

// HandleJob processes one tick job end to end: control-state check,
// bounded batch advance with conflict retries, policy scan, and journal
// pruning. Exported so the manual run-once path shares it.
func (c *Coordinator) HandleJob(ctx context.Context, job queue.Job) error {
	control, err := c.controlState(ctx)
	if err != nil {
		return err
	}
	if control.ProcessingStopped {
		c.logger.Info("processing stopped, ignoring job", "execution_key", job.ExecutionKey)
		return nil
	}

	ticks := job.Ticks
	if ticks < 1 || ticks > c.cfg.MaxTicksPerRun {
		ticks = c.cfg.MaxTicksPerRun
	}

	opts := tick.Options{
		ExecutionKey: job.ExecutionKey,
		Gate:         c.gate,
	}
	result, err := c.engine.AdvanceWithRetry(ctx, ticks, opts, c.cfg.Retry)
	if err != nil {
		if errors.Is(err, lease.ErrUnavailable) {
			// Aborted before any mutation; safe to redeliver.
			c.logger.Info("processor lease busy, job left for redelivery",
				"execution_key", job.ExecutionKey)
		}
		return err
	}

	if result.AlreadyApplied {
		c.logger.Info("job already applied", "execution_key", job.ExecutionKey)
		return nil
	}

	c.logger.Info("tick batch processed",
		"execution_key", job.ExecutionKey,
		"ticks_advanced", result.TicksAdvanced,
		"current_tick", result.CurrentTick,
		"trades", result.TradeCount,
		"interrupted", result.Interrupted,
	)

	c.publish(ctx, result)

	if err := c.maintain(ctx, result); err != nil {
		// Maintenance failures must not fail the job: the batch committed.
		c.logger.Error("post-batch maintenance failed", "error", err)
	}
	return nil
}

// gate is consulted between ticks of a batch so a stop takes effect at
// the next tick boundary instead of failing the batch.
func (c *Coordinator) gate(ctx context.Context) (bool, error) {
	control, err := c.controlState(ctx)
	if err != nil {
		return false, err
	}
	return !control.ProcessingStopped, nil
}

func (c *Coordinator) controlState(ctx context.Context) (model.ControlState, error) {
	var control model.ControlState
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		control, err = tx.ControlState(ctx)
		return err
	})
	return control, err
}

func (c *Coordinator) publish(ctx context.Context, result tick.Result) {
	if result.TicksAdvanced == 0 {
		return
	}
	if c.hub != nil {
		c.hub.PublishTick(result.CurrentTick, result.TicksAdvanced, result.TradeCount, result.LastPrices)
	}
	if c.prices != nil && len(result.LastPrices) > 0 {
		if err := c.prices.Publish(ctx, result.CurrentTick, result.LastPrices); err != nil {
			c.logger.Error("price cache publish failed", "error", err)
		}
	}
}

// maintain runs the every-K-ticks invariant scan with policy, then prunes
// journal rows past the retention window.
func (c *Coordinator) maintain(ctx context.Context, result tick.Result) error {
	c.ticksSinceScan += int64(result.TicksAdvanced)
	if c.ticksSinceScan >= c.cfg.ScanEveryTicks {
		c.ticksSinceScan = 0

		report, err := c.scanner.Scan(ctx, c.cfg.ScanIssueLimit)
		if err != nil {
			return err
		}
		action := Decide(c.cfg.Policy, report)
		if action != ActionNone {
			c.logger.Warn("invariant violations found",
				"issues", len(report.Issues),
				"truncated", report.Truncated,
				"policy", string(c.cfg.Policy),
			)
			if err := applyAction(ctx, c.store, action); err != nil {
				return err
			}
			if action == ActionStop {
				c.logger.Error("processing stopped by invariant policy")
				if c.consumerCancel != nil {
					c.consumerCancel()
				}
			}
		}
	}

	if before := result.CurrentTick - c.cfg.JournalRetentionTicks; before > 0 {
		pruned, err := c.store.PruneJournal(ctx, before)
		if err != nil {
			return err
		}
		if pruned > 0 {
			c.logger.Debug("journal pruned", "rows", pruned, "before_tick", before)
		}
	}
	return nil
}
