package engine

import (
	"bytes"
	"context"
	"slices"
	"unicode/utf8"

	"github.com/roach88/escrow/internal/ir"
)

// Proof is an externally produced signature over a 32-byte message hash.
type Proof struct {
	Hash      []byte
	Signature []byte
}

// Flag freezes a live vault as suspicious. A flagged vault accepts only
// metadata; nothing moves its funds.
func (e *Engine) Flag(ctx context.Context, caller Principal, id uint64, reason string) (Vault, error) {
	return e.transition(ctx, OpFlag, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		if n := utf8.RuneCountInString(reason); n > e.policy.MaxMetadataLength {
			return nil, newError(CodeBadValue, OpFlag, v.ID, "reason is %d characters, limit %d", n, e.policy.MaxMetadataLength)
		}
		v.State = StateFlagged
		return VaultFlagged{Reason: reason}, nil
	})
}

// AttachMetadata records a categorized annotation. The vault is unchanged.
func (e *Engine) AttachMetadata(ctx context.Context, caller Principal, id uint64, category, value string) (Vault, error) {
	return e.transition(ctx, OpAttachMetadata, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		if !slices.Contains(e.policy.MetadataCategories, category) {
			return nil, newError(CodeBadValue, OpAttachMetadata, v.ID, "unknown category %q", category)
		}
		n := utf8.RuneCountInString(value)
		if n == 0 || n > e.policy.MaxMetadataLength {
			return nil, newError(CodeBadValue, OpAttachMetadata, v.ID, "value is %d characters, want 1..%d", n, e.policy.MaxMetadataLength)
		}
		return MetadataAttached{Category: category, Value: value}, nil
	})
}

// AddVerification records that the caller proved control of its identity.
// The proof must recover to the caller.
func (e *Engine) AddVerification(ctx context.Context, caller Principal, id uint64, p Proof) (Vault, error) {
	return e.transition(ctx, OpAddVerification, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		if err := e.checkProof(OpAddVerification, v.ID, caller, p); err != nil {
			return nil, err
		}
		return VerificationAdded{Principal: caller}, nil
	})
}

// VerifyWithCrypto checks a proof against a claimed principal, who need not
// be the caller.
func (e *Engine) VerifyWithCrypto(ctx context.Context, caller Principal, id uint64, claimed Principal, p Proof) (Vault, error) {
	return e.transition(ctx, OpVerifyWithCrypto, caller, id, func(_ context.Context, v *Vault, _ Height) (Event, error) {
		if claimed == "" {
			return nil, newError(CodeBadValue, OpVerifyWithCrypto, v.ID, "claimed principal is required")
		}
		if err := e.checkProof(OpVerifyWithCrypto, v.ID, claimed, p); err != nil {
			return nil, err
		}
		return CryptoVerified{Claimed: claimed}, nil
	})
}

func (e *Engine) checkProof(op Op, id uint64, want Principal, p Proof) error {
	if e.proofs == nil {
		return newError(CodeProofInvalid, op, id, "no proof recoverer configured")
	}
	if !bytes.Equal(p.Hash, ir.ProofDigest(id, string(op))) {
		return newError(CodeProofInvalid, op, id, "proof is not over the %s digest of vault %d", op, id)
	}
	got, err := e.proofs.RecoverPrincipal(p.Hash, p.Signature)
	if err != nil {
		return wrapError(CodeProofInvalid, op, id, err, "recover signer")
	}
	if got != want {
		return newError(CodePrincipalMismatch, op, id, "proof recovers to %s, want %s", got, want)
	}
	return nil
}
