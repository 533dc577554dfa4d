// Package ledger provides an in-memory asset book that implements
// engine.Transferer for tests, scenarios and the CLI's dry-run mode.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"sync"

	"github.com/roach88/escrow/internal/engine"
)

// ErrInsufficient is returned when the source balance is below the amount.
var ErrInsufficient = errors.New("insufficient balance")

// ErrInjected is returned by transfers failed on purpose with FailAfter or
// FailTo.
var ErrInjected = errors.New("injected transfer failure")

type account struct {
	asset string
	owner engine.Principal
}

// Book is a map of (asset, owner) balances.
//
// Thread-safety: all methods are safe for concurrent use.
type Book struct {
	mu       sync.Mutex
	balances map[account]uint64
	moves    int

	failAfter int // fail the transfer after this many successes; <0 disables
	failTo    map[engine.Principal]bool
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		balances:  make(map[account]uint64),
		failAfter: -1,
		failTo:    make(map[engine.Principal]bool),
	}
}

// Mint credits amount of asset to owner out of thin air.
func (b *Book) Mint(asset string, owner engine.Principal, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := account{asset, owner}
	sum, carry := bits.Add64(b.balances[k], amount, 0)
	if carry != 0 {
		return fmt.Errorf("mint %d %s to %s: balance overflows", amount, asset, owner)
	}
	b.balances[k] = sum
	return nil
}

// Balance returns owner's holding of asset.
func (b *Book) Balance(asset string, owner engine.Principal) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account{asset, owner}]
}

// Total returns the sum of all holdings of asset.
func (b *Book) Total(asset string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total uint64
	for k, v := range b.balances {
		if k.asset == asset {
			total += v
		}
	}
	return total
}

// Holders returns every principal with a non-zero balance of asset, sorted.
func (b *Book) Holders(asset string) []engine.Principal {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []engine.Principal
	for k, v := range b.balances {
		if k.asset == asset && v > 0 {
			out = append(out, k.owner)
		}
	}
	slices.Sort(out)
	return out
}

// Moves returns the number of successful transfers.
func (b *Book) Moves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moves
}

// FailAfter makes the transfer following n further successes fail, and
// every one after it. A negative n disables the fault.
func (b *Book) FailAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 {
		b.failAfter = -1
		return
	}
	b.failAfter = b.moves + n
}

// FailTo makes every transfer credited to owner fail.
func (b *Book) FailTo(owner engine.Principal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failTo[owner] = true
}

// Heal clears all injected faults.
func (b *Book) Heal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter = -1
	clear(b.failTo)
}

// Transfer implements engine.Transferer. It moves all of amount or nothing.
func (b *Book) Transfer(_ context.Context, asset string, amount uint64, from, to engine.Principal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failAfter >= 0 && b.moves >= b.failAfter {
		return fmt.Errorf("transfer %d %s %s->%s: %w", amount, asset, from, to, ErrInjected)
	}
	if b.failTo[to] {
		return fmt.Errorf("transfer %d %s to %s: %w", amount, asset, to, ErrInjected)
	}

	src := account{asset, from}
	if b.balances[src] < amount {
		return fmt.Errorf("transfer %d %s from %s (has %d): %w", amount, asset, from, b.balances[src], ErrInsufficient)
	}
	dst := account{asset, to}
	sum, carry := bits.Add64(b.balances[dst], amount, 0)
	if carry != 0 {
		return fmt.Errorf("transfer %d %s to %s: balance overflows", amount, asset, to)
	}
	b.balances[src] -= amount
	b.balances[dst] = sum
	b.moves++
	return nil
}

var _ engine.Transferer = (*Book)(nil)
