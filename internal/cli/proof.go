package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/identity"
	"github.com/roach88/escrow/internal/ir"
)

// proofFlags are the ways a command can be handed a signature.
type proofFlags struct {
	key string
	sig string
}

func (p *proofFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.key, "key", "", "hex private key to sign the vault digest locally")
	cmd.Flags().StringVar(&p.sig, "sig", "", "hex 65-byte compact signature")
	cmd.MarkFlagsMutuallyExclusive("key", "sig")
	cmd.MarkFlagsOneRequired("key", "sig")
}

// build assembles the proof for op on vault id.
func (p *proofFlags) build(op engine.Op, id uint64) (engine.Proof, error) {
	digest := ir.ProofDigest(id, string(op))

	if p.key != "" {
		key, err := identity.ParsePrivateKey(p.key)
		if err != nil {
			return engine.Proof{}, WrapExitError(ExitCommandError, "invalid --key", err)
		}
		sig, err := identity.Sign(key, digest)
		if err != nil {
			return engine.Proof{}, WrapExitError(ExitCommandError, "failed to sign digest", err)
		}
		return engine.Proof{Hash: digest, Signature: sig}, nil
	}

	sig, err := identity.DecodeHex(p.sig)
	if err != nil {
		return engine.Proof{}, WrapExitError(ExitCommandError, "invalid --sig", err)
	}
	return engine.Proof{Hash: digest, Signature: sig}, nil
}

// NewAttestCommand creates the attest command.
func NewAttestCommand(opts *RootOptions) *cobra.Command {
	var pf proofFlags

	cmd := &cobra.Command{
		Use:   "attest <vault-id>",
		Short: "Prove control of the acting principal",
		Long: `Record a verification for the acting principal. The signature must
recover to --as, which is therefore an address such as 0x7e5f...

The signed message is the vault digest for "add-verification"; print it
with 'escrow digest <vault-id> add-verification'.

Exit codes:
  0 - Verification recorded
  1 - Rejected (PROOF_INVALID, PRINCIPAL_MISMATCH, ...)
  2 - Command error

Examples:
  escrow attest --as 0x7e5f4552091a69125d5dfcb7b8c2659029395bdf 1 --key 01
  escrow attest --as 0x7e5f... 1 --sig 0x...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			proof, err := pf.build(engine.OpAddVerification, id)
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.AddVerification(ctx, who, id, proof)
			})
		},
	}

	pf.register(cmd)
	return cmd
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	var pf proofFlags

	cmd := &cobra.Command{
		Use:   "verify <vault-id> <claimed>",
		Short: "Check a signature against a claimed principal",
		Long: `Record that a signature over the "verify-with-crypto" vault digest
recovers to claimed. The caller may be any party to the vault.

Example:
  escrow verify --as admin 1 0x7e5f4552091a69125d5dfcb7b8c2659029395bdf --key 01`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			proof, err := pf.build(engine.OpVerifyWithCrypto, id)
			if err != nil {
				return err
			}
			claimed := engine.Principal(args[1])
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.VerifyWithCrypto(ctx, who, id, claimed, proof)
			})
		},
	}

	pf.register(cmd)
	return cmd
}

// digestView is the output of the digest command.
type digestView struct {
	VaultID uint64 `json:"vault_id"`
	Purpose string `json:"purpose"`
	Digest  string `json:"digest"`
}

func (d digestView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, d.Digest)
	return err
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest <vault-id> <add-verification|verify-with-crypto>",
		Short: "Print the message a proof must sign",
		Long: `Print the 32-byte digest, in hex, that an external signer must sign
for attest or verify on the given vault.

Example:
  escrow digest 1 add-verification`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			op := engine.Op(args[1])
			if op != engine.OpAddVerification && op != engine.OpVerifyWithCrypto {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown purpose %q", args[1]))
			}
			f := newFormatter(cmd, opts)
			return f.Success(digestView{
				VaultID: id,
				Purpose: string(op),
				Digest:  hex.EncodeToString(ir.ProofDigest(id, string(op))),
			})
		},
	}
}
