// Package engine implements the escrow vault engine.
//
// The engine owns a registry of vault records keyed by a monotonically
// increasing id. Each operation is a function of (caller, current height,
// registry) to either a new registry state plus one emitted event, or a
// typed failure.
//
// ARCHITECTURE:
//
// Single-Writer Transitions:
// Every operation runs under one engine-wide mutex. The check-then-mutate
// sequence (load vault, authorize, check state and window, move value,
// write record, emit event) executes inside Registry.Atomically, so it
// either commits as a whole or leaves the registry untouched.
//
// Check Precedence:
// Failures are reported in a fixed order so error codes are deterministic:
//
//	id validity → existence → authorization → state → time window → parameters → effect
//
// Conservation:
// A vault's amount is fixed at creation. Every fund-moving transition pays out
// exactly that amount, split at most two ways, and lands in a terminal state.
// Audit replays an event log and reports any vault where this does not hold.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Events are stamped with a monotonic seq from Clock.Next(), drawn only when
// an event is actually emitted.
//
// Injected Authority:
// The admin and custodian identities come from Policy, never from ambient state.
package engine
