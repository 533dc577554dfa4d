package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "escrow/event/v1"
	DomainProof = "escrow/proof/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// EventID computes the content-addressed id of an emitted event.
// The id is stable across replays given the same inputs.
func EventID(flowToken, kind string, vaultID uint64, seq int64, payload IRObject) (string, error) {
	obj := IRObject{
		"flow_token": IRString(flowToken),
		"kind":       IRString(kind),
		"vault_id":   Amount(vaultID),
		"seq":        IRInt(seq),
		"payload":    payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hex.EncodeToString(hashWithDomain(DomainEvent, canonical)), nil
}

// ProofDigest returns the 32-byte digest a party signs to attest to a vault.
// Binding the vault id and purpose keeps a proof from being replayed elsewhere.
func ProofDigest(vaultID uint64, purpose string) []byte {
	canonical, _ := MarshalCanonical(IRObject{
		"vault_id": Amount(vaultID),
		"purpose":  IRString(purpose),
	})
	return hashWithDomain(DomainProof, canonical)
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(flowToken, kind string, vaultID uint64, seq int64, payload IRObject) string {
	id, err := EventID(flowToken, kind, vaultID, seq, payload)
	if err != nil {
		panic(err)
	}
	return id
}
