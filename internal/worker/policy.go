package worker

import (
	"context"
	"fmt"

	"github.com/corpsim/corpsim/internal/invariant"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// Policy names what happens when an invariant scan finds violations.
type Policy string

const (
	// PolicyLogOnly records the violations and keeps going.
	PolicyLogOnly Policy = "log_only"
	// PolicyPauseBots persists botsPaused so subsequent ticks skip
	// automated order flow while the rest of the simulation continues.
	PolicyPauseBots Policy = "pause_bots"
	// PolicyStop persists processingStopped and halts the consumer.
	PolicyStop Policy = "stop"
)

// Action is the decided response to a scan report.
type Action int

const (
	ActionNone Action = iota
	ActionLog
	ActionPauseBots
	ActionStop
)

// Decide maps a scan report to an action under the configured policy.
// Pure: persistence happens in applyAction.
func Decide(p Policy, report invariant.Report) Action {
	if !report.HasViolations {
		return ActionNone
	}
	switch p {
	case PolicyPauseBots:
		return ActionPauseBots
	case PolicyStop:
		return ActionStop
	default:
		return ActionLog
	}
}

// applyAction persists the decided action's control-state change. The
// violation data itself is never repaired; it stays intact for inspection.
func applyAction(ctx context.Context, st store.Store, action Action) error {
	var mutate func(*model.ControlState)
	switch action {
	case ActionPauseBots:
		mutate = func(s *model.ControlState) { s.BotsPaused = true }
	case ActionStop:
		mutate = func(s *model.ControlState) { s.ProcessingStopped = true }
	default:
		return nil
	}

	err := st.InTx(ctx, func(tx store.Tx) error {
		state, err := tx.ControlState(ctx)
		if err != nil {
			return err
		}
		mutate(&state)
		return tx.SetControlState(ctx, state)
	})
	if err != nil {
		return fmt.Errorf("persist control state: %w", err)
	}
	return nil
}
