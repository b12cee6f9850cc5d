// Package tick implements the optimistic, idempotent tick-advance routine.
//
// Each tick is processed as an independent unit: one transaction that
// matches every active market book, runs the registered per-tick domain
// resolvers, and commits a conditional world-clock update. The optimistic
// lock on the clock is the only conflict detector; the execution journal
// makes redelivered jobs no-ops even after the lock version has moved on.
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corpsim/corpsim/internal/lease"
	"github.com/corpsim/corpsim/internal/market"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// Resolver is a per-tick domain subsystem (production, shipments,
// contracts, workforce, research). It runs inside the tick transaction,
// must preserve company/inventory invariants, and posts its own ledger
// entries. Resolvers carry no ticking logic of their own.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, tx store.Tx, currentTick int64) error
}

// Config holds engine settings.
type Config struct {
	// ProcessorTTL bounds the processor lease held across one Advance call.
	ProcessorTTL time.Duration
}

// Engine advances the world clock.
type Engine struct {
	store  store.Store
	leases *lease.Manager
	market *market.Engine
	cfg    Config
	logger *slog.Logger

	resolvers    []Resolver
	botResolvers []Resolver
}

// NewEngine creates a tick engine.
func NewEngine(st store.Store, leases *lease.Manager, mkt *market.Engine, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProcessorTTL == 0 {
		cfg.ProcessorTTL = 15 * time.Second
	}
	return &Engine{
		store:  st,
		leases: leases,
		market: mkt,
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterResolver adds a domain resolver that runs every tick.
func (e *Engine) RegisterResolver(r Resolver) {
	e.resolvers = append(e.resolvers, r)
}

// RegisterBotResolver adds a resolver that is skipped while botsPaused is
// set, so a pause_bots escalation stops automated order flow while the
// rest of the simulation keeps running.
func (e *Engine) RegisterBotResolver(r Resolver) {
	e.botResolvers = append(e.botResolvers, r)
}

// Options modify one Advance call.
type Options struct {
	// ExpectedLockVersion, when set, must match the stored lock version at
	// the start of the call or the call fails with VersionConflictError
	// before any mutation.
	ExpectedLockVersion *int64
	// ExecutionKey makes the call idempotent: if a journal row with this
	// key exists the call is a committed no-op reporting zero ticks.
	ExecutionKey string
	// Gate is consulted between ticks; returning false interrupts the
	// batch cleanly at a tick boundary with partial progress. It is never
	// consulted mid-tick: a started transaction runs to commit or conflict.
	Gate func(ctx context.Context) (bool, error)
}

// Result reports what one Advance call did.
type Result struct {
	TicksAdvanced  int
	CurrentTick    int64
	LockVersion    int64
	TradeCount     int
	LastPrices     map[model.BookKey]int64
	AlreadyApplied bool // Execution key was found in the journal
	Interrupted    bool // Gate stopped the batch early
}

// Advance processes up to n ticks, each as an independent transaction.
// It holds the processor lease for the duration of the call; if another
// worker holds it, lease.ErrUnavailable is returned before any mutation.
func (e *Engine) Advance(ctx context.Context, n int, opts Options) (Result, error) {
	if n < 1 {
		return Result{}, fmt.Errorf("tick: advance count must be >= 1, got %d", n)
	}

	release, err := e.leases.Hold(ctx, lease.Processor, e.cfg.ProcessorTTL)
	if err != nil {
		return Result{}, err
	}
	defer release()

	result := Result{LastPrices: make(map[model.BookKey]int64)}
	for i := 0; i < n; i++ {
		if i > 0 && opts.Gate != nil {
			proceed, err := opts.Gate(ctx)
			if err != nil {
				return result, fmt.Errorf("tick: gate check: %w", err)
			}
			if !proceed {
				result.Interrupted = true
				e.logger.Info("tick batch interrupted at boundary",
					"ticks_advanced", result.TicksAdvanced,
					"requested", n,
				)
				return result, nil
			}
		}

		done, err := e.advanceOne(ctx, i == 0, opts, &result)
		if err != nil {
			return result, err
		}
		if done {
			return result, nil
		}
	}
	return result, nil
}

// advanceOne runs one tick unit in its own transaction. done reports that
// the whole call should stop (already-applied no-op).
func (e *Engine) advanceOne(ctx context.Context, first bool, opts Options, result *Result) (done bool, err error) {
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		clock, err := tx.Clock(ctx)
		if err != nil {
			return err
		}

		if first {
			if opts.ExpectedLockVersion != nil && *opts.ExpectedLockVersion != clock.LockVersion {
				return &VersionConflictError{Expected: *opts.ExpectedLockVersion, Actual: clock.LockVersion}
			}
			if opts.ExecutionKey != "" {
				applied, err := tx.JournalExists(ctx, opts.ExecutionKey)
				if err != nil {
					return err
				}
				if applied {
					// Commit the no-op: the logical advance already ran.
					result.AlreadyApplied = true
					result.CurrentTick = clock.CurrentTick
					result.LockVersion = clock.LockVersion
					done = true
					return nil
				}
			}
		}

		control, err := tx.ControlState(ctx)
		if err != nil {
			return err
		}

		tickResult, err := e.market.MatchAll(ctx, tx, clock.CurrentTick)
		if err != nil {
			return err
		}

		for _, r := range e.resolvers {
			if err := r.Resolve(ctx, tx, clock.CurrentTick); err != nil {
				return fmt.Errorf("resolver %s: %w", r.Name(), err)
			}
		}
		if !control.BotsPaused {
			for _, r := range e.botResolvers {
				if err := r.Resolve(ctx, tx, clock.CurrentTick); err != nil {
					return fmt.Errorf("bot resolver %s: %w", r.Name(), err)
				}
			}
		}

		ok, err := tx.AdvanceClock(ctx, clock.LockVersion, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrOptimisticLockConflict
		}

		if first && opts.ExecutionKey != "" {
			if err := tx.InsertJournal(ctx, opts.ExecutionKey, clock.CurrentTick+1); err != nil {
				return err
			}
		}

		result.TicksAdvanced++
		result.CurrentTick = clock.CurrentTick + 1
		result.LockVersion = clock.LockVersion + 1
		result.TradeCount += tickResult.TradeCount
		for book, price := range tickResult.LastPrices {
			result.LastPrices[book] = price
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !done {
		e.logger.Debug("tick committed",
			"tick", result.CurrentTick,
			"lock_version", result.LockVersion,
		)
	}
	return done, nil
}

// Reset sets the clock back to tick zero. The lock version keeps
// increasing, so in-flight advances still conflict and roll back.
func (e *Engine) Reset(ctx context.Context) error {
	release, err := e.leases.Hold(ctx, lease.Processor, e.cfg.ProcessorTTL)
	if err != nil {
		return err
	}
	defer release()

	return e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.ResetClock(ctx)
	})
}
