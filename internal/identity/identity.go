// Package identity recovers principals from compact secp256k1 signatures.
//
// A principal is the Ethereum-style address of the signing key:
// "0x" + hex of the last 20 bytes of Keccak-256 over the uncompressed public
// key without its 0x04 prefix.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/roach88/escrow/internal/engine"
)

// HashSize is the required message hash length.
const HashSize = 32

// SignatureSize is the length of a compact recoverable signature.
const SignatureSize = 65

// Secp256k1 implements engine.ProofRecoverer.
type Secp256k1 struct{}

// RecoverPrincipal returns the principal whose key produced sig over msgHash.
func (Secp256k1) RecoverPrincipal(msgHash, sig []byte) (engine.Principal, error) {
	if len(msgHash) != HashSize {
		return "", fmt.Errorf("message hash is %d bytes, want %d", len(msgHash), HashSize)
	}
	if len(sig) != SignatureSize {
		return "", fmt.Errorf("signature is %d bytes, want %d", len(sig), SignatureSize)
	}
	pub, _, err := ecdsa.RecoverCompact(sig, msgHash)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return PrincipalOf(pub), nil
}

// PrincipalOf derives the principal of a public key.
func PrincipalOf(pub *secp256k1.PublicKey) engine.Principal {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	digest := h.Sum(nil)
	return engine.Principal("0x" + hex.EncodeToString(digest[12:]))
}

// Sign produces a compact recoverable signature over msgHash.
func Sign(key *secp256k1.PrivateKey, msgHash []byte) ([]byte, error) {
	if len(msgHash) != HashSize {
		return nil, fmt.Errorf("message hash is %d bytes, want %d", len(msgHash), HashSize)
	}
	return ecdsa.SignCompact(key, msgHash, false), nil
}

// ParsePrivateKey decodes a 32-byte hex private key, with or without 0x.
func ParsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

// DecodeHex decodes a hex string with an optional 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

var _ engine.ProofRecoverer = Secp256k1{}
