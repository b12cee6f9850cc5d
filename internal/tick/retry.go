package tick

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corpsim/corpsim/internal/model"
)

// RetryConfig bounds the exponential backoff applied to optimistic lock
// conflicts. Delay for attempt k is min(MaxDelay, BaseDelay * 2^k).
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// AdvanceWithRetry calls Advance, retrying optimistic lock conflicts with
// bounded exponential backoff. Version conflicts, lease unavailability, and
// every other error surface immediately. Progress accumulates across
// attempts: a conflict on tick three of five retries only the remaining
// two.
func (e *Engine) AdvanceWithRetry(ctx context.Context, n int, opts Options, rc RetryConfig) (Result, error) {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}

	total := Result{LastPrices: make(map[model.BookKey]int64)}
	remaining := n

	for attempt := 0; attempt < rc.MaxAttempts; attempt++ {
		res, err := e.Advance(ctx, remaining, opts)
		merge(&total, res)
		remaining -= res.TicksAdvanced

		if total.TicksAdvanced > 0 {
			// The journal row (if any) committed with the first tick, and
			// our own commits moved the lock version past any pinned
			// expectation. Continuation attempts run bare.
			opts.ExecutionKey = ""
			opts.ExpectedLockVersion = nil
		}

		if err == nil {
			return total, nil
		}
		if !errors.Is(err, ErrOptimisticLockConflict) {
			return total, err
		}
		if attempt == rc.MaxAttempts-1 {
			break
		}

		delay := backoff(rc, attempt)
		e.logger.Warn("optimistic lock conflict, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"remaining_ticks", remaining,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}

	return total, fmt.Errorf("tick: advance failed after %d attempts: %w", rc.MaxAttempts, ErrOptimisticLockConflict)
}

func merge(total *Result, res Result) {
	total.TicksAdvanced += res.TicksAdvanced
	total.TradeCount += res.TradeCount
	if res.CurrentTick > 0 || res.TicksAdvanced > 0 || res.AlreadyApplied {
		total.CurrentTick = res.CurrentTick
		total.LockVersion = res.LockVersion
	}
	for book, price := range res.LastPrices {
		total.LastPrices[book] = price
	}
	total.AlreadyApplied = total.AlreadyApplied || res.AlreadyApplied
	total.Interrupted = res.Interrupted
}

func backoff(rc RetryConfig, attempt int) time.Duration {
	delay := rc.BaseDelay << uint(attempt)
	if delay > rc.MaxDelay || delay <= 0 {
		delay = rc.MaxDelay
	}
	return delay
}
