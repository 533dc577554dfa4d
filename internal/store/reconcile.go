package store

import (
	"context"
	"fmt"

	"github.com/roach88/escrow/internal/engine"
)

// Mismatch is a vault whose stored state disagrees with its event log.
type Mismatch struct {
	VaultID  uint64       `json:"vault_id"`
	Stored   engine.State `json:"stored"`
	Replayed engine.State `json:"replayed,omitempty"`
	Missing  bool         `json:"missing,omitempty"` // no events at all
}

// Reconcile replays the event log and compares the derived state of every
// vault with its row in the vaults table.
func (s *Store) Reconcile(ctx context.Context) ([]Mismatch, error) {
	events, err := s.ReadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	replayed := engine.ReplayStates(events)

	vaults, err := s.ListVaults(ctx, VaultFilter{}, 0)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	out := []Mismatch{}
	for _, v := range vaults {
		st, ok := replayed[v.ID]
		switch {
		case !ok:
			out = append(out, Mismatch{VaultID: v.ID, Stored: v.State, Missing: true})
		case st != v.State:
			out = append(out, Mismatch{VaultID: v.ID, Stored: v.State, Replayed: st})
		}
	}
	return out, nil
}
