// Package harness runs escrow scenarios against a real engine.
//
// A scenario is a YAML file naming a policy, opening balances, a sequence
// of engine operations and assertions over the final state:
//
//	name: complete_happy_path
//	description: "Depositor releases funds to the recipient"
//	height: 100
//	balances:
//	  - { asset: gold, owner: alice, amount: 1000 }
//	steps:
//	  - op: create
//	    caller: alice
//	    args: { recipient: bob, asset: gold, amount: 250 }
//	    expect: { state: pending }
//	  - op: complete
//	    caller: alice
//	    args: { id: 1 }
//	    expect: { state: completed }
//	assertions:
//	  - { type: balance, asset: gold, owner: bob, amount: 250 }
//	  - { type: conserved }
//
// The policy field, when present, is CUE source compiled by package policy.
// Without it the admin is "admin" and the custodian is "vault".
//
// # Steps
//
// Each step runs one operation as caller. "at" pins the block height and
// "advance" moves it forward before the call. "fail_after" makes the
// ledger reject transfers after that many successes, and "fail_to" rejects
// transfers to one principal, for the duration of the step. A step without expect must succeed; expect.error names the rejection
// code the step must produce instead.
//
// # Assertion Types
//
//   - vault_state: the vault's final state
//   - vault_fields: a subset match on the vault's fields
//   - balance: one holder's ledger balance
//   - event_count: how many events of one kind were emitted
//   - event_order: event kinds appear in the given relative order
//   - conserved: the event log audits clean and no value was created or lost
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory registry, a fixed flow token, a logical
// clock starting at zero and a manual height source, so traces compare
// byte for byte against golden files.
package harness
