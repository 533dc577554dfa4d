package engine

import (
	"context"
	"sync"
)

// Registry is the durable table of vault records plus the id counter.
type Registry interface {
	// Atomically runs fn in a transaction. If fn returns an error every
	// write made through tx is discarded. The ctx passed to fn carries the
	// transaction for collaborators that can join it.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get reads a committed vault outside any transaction.
	Get(ctx context.Context, id uint64) (Vault, bool, error)

	// Counter returns the highest id issued so far, zero when none.
	Counter(ctx context.Context) (uint64, error)
}

// Tx is the registry view inside Atomically.
type Tx interface {
	// Get performs an explicit existence lookup. It never infers presence
	// from the counter.
	Get(ctx context.Context, id uint64) (Vault, bool, error)
	Put(ctx context.Context, v Vault) error
	// NextID issues max(counter+1, origin) and advances the counter.
	NextID(ctx context.Context, origin uint64) (uint64, error)
}

// MemoryRegistry is an in-process Registry. Writes are staged per
// transaction and applied only when fn succeeds.
//
// Thread-safety: MemoryRegistry is safe for concurrent use; transactions
// are serialized.
type MemoryRegistry struct {
	mu      sync.Mutex
	vaults  map[uint64]Vault
	counter uint64
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{vaults: make(map[uint64]Vault)}
}

// Atomically implements Registry.
func (r *MemoryRegistry) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{base: r, staged: make(map[uint64]Vault), counter: r.counter}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, v := range tx.staged {
		r.vaults[id] = v
	}
	r.counter = tx.counter
	return nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, id uint64) (Vault, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[id]
	return v, ok, nil
}

// Counter implements Registry.
func (r *MemoryRegistry) Counter(context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter, nil
}

// Len returns the number of stored vaults.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vaults)
}

type memoryTx struct {
	base    *MemoryRegistry
	staged  map[uint64]Vault
	counter uint64
}

func (tx *memoryTx) Get(_ context.Context, id uint64) (Vault, bool, error) {
	if v, ok := tx.staged[id]; ok {
		return v, true, nil
	}
	v, ok := tx.base.vaults[id]
	return v, ok, nil
}

func (tx *memoryTx) Put(_ context.Context, v Vault) error {
	tx.staged[v.ID] = v
	return nil
}

func (tx *memoryTx) NextID(_ context.Context, origin uint64) (uint64, error) {
	next := tx.counter + 1
	if next < origin {
		next = origin
	}
	tx.counter = next
	return next, nil
}
