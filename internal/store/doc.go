// Package store provides SQLite-backed durable storage for the vault engine.
//
// One database file holds:
//   - vaults: one row per vault, never deleted
//   - counters: the vault id counter
//   - events: the append-only event log, keyed by content-addressed id
//   - balances: the asset book used by Ledger
//
// Store implements engine.Registry and engine.EventSink; Ledger implements
// engine.Transferer. Inside Store.Atomically the transaction travels in the
// context, and Emit and Ledger.Transfer join it, so a vault write, its
// event and its transfers commit or roll back together.
//
// # Conventions
//
//   - Amounts are uint64 and exceed SQLite's signed INTEGER range, so they
//     are stored as decimal TEXT.
//   - Event ordering uses seq (the engine's logical clock), never wall time.
//   - Every listing query has an ORDER BY with the table key as tiebreaker.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
