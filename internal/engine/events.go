package engine

import (
	"context"
	"sync"

	"github.com/roach88/escrow/internal/ir"
)

// EventKind names an event variant.
type EventKind string

const (
	KindVaultCreated       EventKind = "vault_created"
	KindTransferCompleted  EventKind = "transfer_completed"
	KindFundsReturned      EventKind = "funds_returned"
	KindFundsWithdrawn     EventKind = "funds_withdrawn"
	KindVaultExtended      EventKind = "vault_extended"
	KindExpiredRecovered   EventKind = "expired_recovered"
	KindDisputeOpened      EventKind = "dispute_opened"
	KindDisputeResolved    EventKind = "dispute_resolved"
	KindVaultFlagged       EventKind = "vault_flagged"
	KindMetadataAttached   EventKind = "metadata_attached"
	KindVerificationAdded  EventKind = "verification_added"
	KindCryptoVerified     EventKind = "crypto_verified"
	KindRecoveryAddressSet EventKind = "recovery_address_set"
	KindTimeRecoverySet    EventKind = "time_recovery_set"
)

// Event is a sealed tagged union with one variant per transition.
type Event interface {
	Kind() EventKind
	// Fields returns the variant's payload without the caller.
	Fields() ir.IRObject
	isEvent()
}

// Settlement is implemented by events that move value out of custody.
type Settlement interface {
	Event
	Paid() (toDepositor, toRecipient uint64)
}

type VaultCreated struct {
	Depositor   Principal
	Recipient   Principal
	AssetID     string
	Amount      uint64
	StartHeight Height
	EndHeight   Height
}

type TransferCompleted struct {
	Recipient Principal
	Amount    uint64
}

type FundsReturned struct {
	Depositor Principal
	Amount    uint64
}

type FundsWithdrawn struct {
	Depositor Principal
	Amount    uint64
}

type VaultExtended struct {
	Delta     Height
	EndHeight Height
}

type ExpiredRecovered struct {
	Depositor Principal
	Amount    uint64
}

type DisputeOpened struct{}

type DisputeResolved struct {
	Percentage     uint8
	DepositorShare uint64
	RecipientShare uint64
}

type VaultFlagged struct {
	Reason string
}

type MetadataAttached struct {
	Category string
	Value    string
}

type VerificationAdded struct {
	Principal Principal
}

type CryptoVerified struct {
	Claimed Principal
}

type RecoveryAddressSet struct {
	Address Principal
}

type TimeRecoverySet struct {
	Address      Principal
	Delay        Height
	UnlockHeight Height
}

func (VaultCreated) Kind() EventKind       { return KindVaultCreated }
func (TransferCompleted) Kind() EventKind  { return KindTransferCompleted }
func (FundsReturned) Kind() EventKind      { return KindFundsReturned }
func (FundsWithdrawn) Kind() EventKind     { return KindFundsWithdrawn }
func (VaultExtended) Kind() EventKind      { return KindVaultExtended }
func (ExpiredRecovered) Kind() EventKind   { return KindExpiredRecovered }
func (DisputeOpened) Kind() EventKind      { return KindDisputeOpened }
func (DisputeResolved) Kind() EventKind    { return KindDisputeResolved }
func (VaultFlagged) Kind() EventKind       { return KindVaultFlagged }
func (MetadataAttached) Kind() EventKind   { return KindMetadataAttached }
func (VerificationAdded) Kind() EventKind  { return KindVerificationAdded }
func (CryptoVerified) Kind() EventKind     { return KindCryptoVerified }
func (RecoveryAddressSet) Kind() EventKind { return KindRecoveryAddressSet }
func (TimeRecoverySet) Kind() EventKind    { return KindTimeRecoverySet }

func (VaultCreated) isEvent()       {}
func (TransferCompleted) isEvent()  {}
func (FundsReturned) isEvent()      {}
func (FundsWithdrawn) isEvent()     {}
func (VaultExtended) isEvent()      {}
func (ExpiredRecovered) isEvent()   {}
func (DisputeOpened) isEvent()      {}
func (DisputeResolved) isEvent()    {}
func (VaultFlagged) isEvent()       {}
func (MetadataAttached) isEvent()   {}
func (VerificationAdded) isEvent()  {}
func (CryptoVerified) isEvent()     {}
func (RecoveryAddressSet) isEvent() {}
func (TimeRecoverySet) isEvent()    {}

func (e TransferCompleted) Paid() (uint64, uint64) { return 0, e.Amount }
func (e FundsReturned) Paid() (uint64, uint64)     { return e.Amount, 0 }
func (e FundsWithdrawn) Paid() (uint64, uint64)    { return e.Amount, 0 }
func (e ExpiredRecovered) Paid() (uint64, uint64)  { return e.Amount, 0 }
func (e DisputeResolved) Paid() (uint64, uint64)   { return e.DepositorShare, e.RecipientShare }

func paid(s Settlement, obj ir.IRObject) ir.IRObject {
	dep, rec := s.Paid()
	obj["paid_depositor"] = ir.Amount(dep)
	obj["paid_recipient"] = ir.Amount(rec)
	return obj
}

func (e VaultCreated) Fields() ir.IRObject {
	return ir.IRObject{
		"depositor":    ir.IRString(e.Depositor),
		"recipient":    ir.IRString(e.Recipient),
		"asset_id":     ir.IRString(e.AssetID),
		"amount":       ir.Amount(e.Amount),
		"start_height": ir.IRInt(e.StartHeight),
		"end_height":   ir.IRInt(e.EndHeight),
	}
}

func (e TransferCompleted) Fields() ir.IRObject {
	return paid(e, ir.IRObject{"recipient": ir.IRString(e.Recipient)})
}

func (e FundsReturned) Fields() ir.IRObject {
	return paid(e, ir.IRObject{"depositor": ir.IRString(e.Depositor)})
}

func (e FundsWithdrawn) Fields() ir.IRObject {
	return paid(e, ir.IRObject{"depositor": ir.IRString(e.Depositor)})
}

func (e ExpiredRecovered) Fields() ir.IRObject {
	return paid(e, ir.IRObject{"depositor": ir.IRString(e.Depositor)})
}

func (e DisputeResolved) Fields() ir.IRObject {
	return paid(e, ir.IRObject{"percentage": ir.IRInt(e.Percentage)})
}

func (e VaultExtended) Fields() ir.IRObject {
	return ir.IRObject{
		"delta":      ir.IRInt(e.Delta),
		"end_height": ir.IRInt(e.EndHeight),
	}
}

func (DisputeOpened) Fields() ir.IRObject { return ir.IRObject{} }

func (e VaultFlagged) Fields() ir.IRObject {
	return ir.IRObject{"reason": ir.IRString(e.Reason)}
}

func (e MetadataAttached) Fields() ir.IRObject {
	return ir.IRObject{
		"category": ir.IRString(e.Category),
		"value":    ir.IRString(e.Value),
	}
}

func (e VerificationAdded) Fields() ir.IRObject {
	return ir.IRObject{"principal": ir.IRString(e.Principal)}
}

func (e CryptoVerified) Fields() ir.IRObject {
	return ir.IRObject{"claimed": ir.IRString(e.Claimed)}
}

func (e RecoveryAddressSet) Fields() ir.IRObject {
	return ir.IRObject{"address": ir.IRString(e.Address)}
}

func (e TimeRecoverySet) Fields() ir.IRObject {
	return ir.IRObject{
		"address":       ir.IRString(e.Address),
		"delay":         ir.IRInt(e.Delay),
		"unlock_height": ir.IRInt(e.UnlockHeight),
	}
}

// Record is an emitted event with its envelope.
type Record struct {
	ID        string
	Seq       int64
	FlowToken string
	VaultID   uint64
	Height    Height
	Caller    Principal
	Event     Event
}

// Payload is the event's fields plus the caller under "by".
func (r Record) Payload() ir.IRObject {
	obj := r.Event.Fields()
	obj["by"] = ir.IRString(r.Caller)
	return obj
}

// Stored flattens the record into its persisted form.
func (r Record) Stored() StoredEvent {
	return StoredEvent{
		ID:        r.ID,
		Seq:       r.Seq,
		FlowToken: r.FlowToken,
		VaultID:   r.VaultID,
		Kind:      r.Event.Kind(),
		Height:    r.Height,
		Payload:   r.Payload(),
	}
}

// StoredEvent is the persisted, untyped form of a Record.
type StoredEvent struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	FlowToken string      `json:"flow_token"`
	VaultID   uint64      `json:"vault_id"`
	Kind      EventKind   `json:"kind"`
	Height    Height      `json:"height"`
	Payload   ir.IRObject `json:"payload"`
}

// EventSink receives every emitted record. It is a side channel for auditing;
// the engine never reads it back to make decisions.
//
// Emit is called inside the registry transaction. A sink that can join that
// transaction (the SQLite store) does so through ctx.
type EventSink interface {
	Emit(ctx context.Context, rec Record) error
}

// DiscardSink drops every record.
type DiscardSink struct{}

// Emit implements EventSink.
func (DiscardSink) Emit(context.Context, Record) error { return nil }

// MemorySink keeps records in memory, in emission order.
//
// Thread-safety: MemorySink is safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// Emit implements EventSink.
func (s *MemorySink) Emit(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything emitted so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Stored returns the records in persisted form.
func (s *MemorySink) Stored() []StoredEvent {
	recs := s.Records()
	out := make([]StoredEvent, len(recs))
	for i, r := range recs {
		out[i] = r.Stored()
	}
	return out
}

// Kinds returns the kinds of all records, in order.
func (s *MemorySink) Kinds() []EventKind {
	recs := s.Records()
	out := make([]EventKind, len(recs))
	for i, r := range recs {
		out[i] = r.Event.Kind()
	}
	return out
}

// targets maps state-changing event kinds to the state they leave a vault in.
var targets = map[EventKind]State{
	KindVaultCreated:      StatePending,
	KindTransferCompleted: StateCompleted,
	KindFundsReturned:     StateReturned,
	KindFundsWithdrawn:    StateWithdrawn,
	KindExpiredRecovered:  StateExpired,
	KindDisputeOpened:     StateDisputed,
	KindDisputeResolved:   StateResolved,
	KindVaultFlagged:      StateFlagged,
}

// Target returns the state a vault is in after an event of kind k, or false
// for kinds that leave the state unchanged.
func (k EventKind) Target() (State, bool) {
	s, ok := targets[k]
	return s, ok
}
