package worker

import (
	"context"
	"testing"

	"github.com/corpsim/corpsim/internal/invariant"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
	"github.com/corpsim/corpsim/internal/store/memstore"
)

func TestDecide(t *testing.T) {
	clean := invariant.Report{}
	dirty := invariant.Report{
		HasViolations: true,
		Issues:        []model.InvariantIssue{{Kind: "negative_cash", CompanyID: "a"}},
	}

	tests := []struct {
		name   string
		policy Policy
		report invariant.Report
		want   Action
	}{
		{"clean log_only", PolicyLogOnly, clean, ActionNone},
		{"clean pause_bots", PolicyPauseBots, clean, ActionNone},
		{"clean stop", PolicyStop, clean, ActionNone},
		{"dirty log_only", PolicyLogOnly, dirty, ActionLog},
		{"dirty pause_bots", PolicyPauseBots, dirty, ActionPauseBots},
		{"dirty stop", PolicyStop, dirty, ActionStop},
		{"dirty unknown policy", Policy("bogus"), dirty, ActionLog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.policy, tt.report); got != tt.want {
				t.Errorf("Decide(%s) = %d, want %d", tt.policy, got, tt.want)
			}
		})
	}
}

func TestApplyAction(t *testing.T) {
	readControl := func(t *testing.T, st *memstore.Store) model.ControlState {
		t.Helper()
		var control model.ControlState
		err := st.InTx(context.Background(), func(tx store.Tx) error {
			var err error
			control, err = tx.ControlState(context.Background())
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return control
	}

	t.Run("pause bots", func(t *testing.T) {
		st := memstore.New()
		if err := applyAction(context.Background(), st, ActionPauseBots); err != nil {
			t.Fatal(err)
		}
		control := readControl(t, st)
		if !control.BotsPaused {
			t.Error("BotsPaused not set")
		}
		if control.ProcessingStopped {
			t.Error("ProcessingStopped set by pause_bots")
		}
	})

	t.Run("stop", func(t *testing.T) {
		st := memstore.New()
		if err := applyAction(context.Background(), st, ActionStop); err != nil {
			t.Fatal(err)
		}
		control := readControl(t, st)
		if !control.ProcessingStopped {
			t.Error("ProcessingStopped not set")
		}
	})

	t.Run("log and none mutate nothing", func(t *testing.T) {
		st := memstore.New()
		for _, a := range []Action{ActionNone, ActionLog} {
			if err := applyAction(context.Background(), st, a); err != nil {
				t.Fatal(err)
			}
		}
		control := readControl(t, st)
		if control.BotsPaused || control.ProcessingStopped {
			t.Errorf("control state mutated: %+v", control)
		}
	})

	t.Run("pause preserves existing stop", func(t *testing.T) {
		st := memstore.New()
		if err := applyAction(context.Background(), st, ActionStop); err != nil {
			t.Fatal(err)
		}
		if err := applyAction(context.Background(), st, ActionPauseBots); err != nil {
			t.Fatal(err)
		}
		control := readControl(t, st)
		if !control.BotsPaused || !control.ProcessingStopped {
			t.Errorf("control state = %+v, want both flags set", control)
		}
	})
}
