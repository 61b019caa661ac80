package delta

import (
	"errors"
	"fmt"
	"log/slog"
)

var ErrNilState = errors.New("sync state is nil")

// Applier writes accepted outcomes back into the state store. It is the only
// component that mutates persisted sync state.
type Applier struct {
	store StateWriter
}

func NewApplier(store StateWriter) *Applier {
	return &Applier{store: store}
}

// Apply records the outcome of a change after its transfer has completed.
// Store failures are returned as is; nothing is retried or rolled back.
func (a *Applier) Apply(delta DeltaEntry, state *SyncState) error {
	switch delta.Action {
	case ActionCreate, ActionModify:
		if state == nil {
			return fmt.Errorf("apply %s %s: %w", delta.Action, delta.Path, ErrNilState)
		}
		if err := a.store.UpdateSyncState(state); err != nil {
			return fmt.Errorf("apply %s %s: %w", delta.Action, delta.Path, err)
		}
	case ActionDelete:
		if err := a.store.DeleteSyncState(delta.Path); err != nil {
			return fmt.Errorf("apply %s %s: %w", delta.Action, delta.Path, err)
		}
	case ActionMove, ActionNoChange:
		// renames are resolved by the orchestrator
		return nil
	default:
		return fmt.Errorf("apply %s: unknown action %s", delta.Path, delta.Action)
	}

	slog.Debug("sync state applied", "path", delta.Path, "action", delta.Action)
	return nil
}
