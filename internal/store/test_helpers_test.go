package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/escrow/internal/engine"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestVault builds a pending vault with minimal required fields.
func createTestVault(id uint64, depositor, recipient engine.Principal, amount uint64) engine.Vault {
	return engine.Vault{
		ID:          id,
		Depositor:   depositor,
		Recipient:   recipient,
		AssetID:     "gold",
		Amount:      amount,
		State:       engine.StatePending,
		StartHeight: 10,
		EndHeight:   110,
	}
}

// putVaults writes vaults in one transaction.
func putVaults(t *testing.T, s *Store, vaults ...engine.Vault) {
	t.Helper()
	err := s.Atomically(context.Background(), func(ctx context.Context, tx engine.Tx) error {
		for _, v := range vaults {
			if err := tx.Put(ctx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("put vaults: %v", err)
	}
}
