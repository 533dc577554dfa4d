package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/engine"
)

// vaultView renders a vault for output. JSON uses the vault's own tags.
type vaultView struct {
	engine.Vault
}

// RenderText implements textRenderer.
func (v vaultView) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "vault %d\t%s\n", v.ID, v.State)
	fmt.Fprintf(tw, "  depositor\t%s\n", v.Depositor)
	fmt.Fprintf(tw, "  recipient\t%s\n", v.Recipient)
	fmt.Fprintf(tw, "  amount\t%d %s\n", v.Amount, v.AssetID)
	fmt.Fprintf(tw, "  window\t%d..%d (extended %d)\n", v.StartHeight, v.EndHeight, v.Extended)
	if v.RecoveryAddress != "" {
		if v.RecoveryUnlock != 0 {
			fmt.Fprintf(tw, "  recovery\t%s (unlocks at %d)\n", v.RecoveryAddress, v.RecoveryUnlock)
		} else {
			fmt.Fprintf(tw, "  recovery\t%s\n", v.RecoveryAddress)
		}
	}
	return tw.Flush()
}

// vaultOp is one engine call made by the acting principal.
type vaultOp func(ctx context.Context, eng *engine.Engine, caller engine.Principal) (engine.Vault, error)

// runVaultOp opens a session, runs op as --as and prints the vault.
func runVaultOp(cmd *cobra.Command, opts *RootOptions, op vaultOp) error {
	f := newFormatter(cmd, opts)
	who, err := caller(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	f.VerboseLog("%s as %s on %s", cmd.Name(), who, opts.Database)
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := op(ctx, s.engine, who)
	if err != nil {
		return f.Reject(err)
	}
	slog.Debug("operation applied", "command", cmd.Name(), "vault", v.ID, "state", v.State)
	return f.Success(vaultView{v})
}

func parseUint(name, s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", name, s), err)
	}
	return n, nil
}

// NewCreateCommand creates the create command.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	var lifetime uint64

	cmd := &cobra.Command{
		Use:   "create <recipient> <asset> <amount>",
		Short: "Lock funds in a new vault",
		Long: `Lock amount units of asset from the acting principal in a new vault
payable to recipient.

The vault stays open for --lifetime blocks, or the policy default when 0.

Exit codes:
  0 - Vault created
  1 - Rejected (BAD_VALUE, BAD_RECIPIENT, TRANSFER_FAILED, ...)
  2 - Command error

Examples:
  escrow create --as alice bob gold 250
  escrow create --as alice bob gold 250 --lifetime 144 --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseUint("amount", args[2])
			if err != nil {
				return err
			}
			req := engine.CreateRequest{
				Recipient: engine.Principal(args[0]),
				AssetID:   args[1],
				Amount:    amount,
				Lifetime:  engine.Height(lifetime),
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.Create(ctx, who, req)
			})
		},
	}

	cmd.Flags().Uint64Var(&lifetime, "lifetime", 0, "validity window in blocks (0 = policy default)")

	return cmd
}

// idCommand describes a command taking only a vault id.
type idCommand struct {
	use, short, long string
	call             func(eng *engine.Engine) func(context.Context, engine.Principal, uint64) (engine.Vault, error)
}

var idCommands = []idCommand{
	{
		use:   "complete",
		short: "Release a vault to its recipient",
		long:  "Release the locked amount to the recipient. Allowed for the depositor or admin while the window is open.",
		call: func(eng *engine.Engine) func(context.Context, engine.Principal, uint64) (engine.Vault, error) {
			return eng.Complete
		},
	},
	{
		use:   "return",
		short: "Return a vault to its depositor (admin)",
		long:  "Send the locked amount back to the depositor on the admin's authority, at any height.",
		call: func(eng *engine.Engine) func(context.Context, engine.Principal, uint64) (engine.Vault, error) {
			return eng.Return
		},
	},
	{
		use:   "withdraw",
		short: "Withdraw a vault as its depositor",
		long:  "Take the locked amount back while the window is open. Only the depositor may withdraw.",
		call: func(eng *engine.Engine) func(context.Context, engine.Principal, uint64) (engine.Vault, error) {
			return eng.Withdraw
		},
	},
	{
		use:   "recover",
		short: "Refund an expired vault",
		long:  "Refund the depositor after the window has elapsed. Allowed for the depositor or admin.",
		call: func(eng *engine.Engine) func(context.Context, engine.Principal, uint64) (engine.Vault, error) {
			return eng.RecoverExpired
		},
	},
	{
		use:   "dispute",
		short: "Open a dispute on a live vault",
		long:  "Freeze a live vault until the admin resolves it. Allowed for either party while the window is open.",
		call: func(eng *engine.Engine) func(context.Context, engine.Principal, uint64) (engine.Vault, error) {
			return eng.OpenDispute
		},
	},
}

func newIDCommand(opts *RootOptions, def idCommand) *cobra.Command {
	return &cobra.Command{
		Use:   def.use + " <vault-id>",
		Short: def.short,
		Long: def.long + `

Exit codes:
  0 - Applied
  1 - Rejected by the engine
  2 - Command error

Example:
  escrow ` + def.use + ` --as alice 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return def.call(eng)(ctx, who, id)
			})
		},
	}
}

// vaultCommands returns every command that acts on an existing vault.
func vaultCommands(opts *RootOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(idCommands)+8)
	for _, def := range idCommands {
		cmds = append(cmds, newIDCommand(opts, def))
	}
	return append(cmds,
		NewResolveCommand(opts),
		NewExtendCommand(opts),
		NewFlagCommand(opts),
		NewAnnotateCommand(opts),
		NewSetRecoveryCommand(opts),
		NewTimeRecoveryCommand(opts),
		NewAttestCommand(opts),
		NewVerifyCommand(opts),
	)
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <vault-id> <depositor-pct>",
		Short: "Split a disputed vault (admin)",
		Long: `Pay out a disputed vault: depositor-pct percent (rounded down) to the
depositor and the remainder to the recipient.

Example:
  escrow resolve --as admin 1 40`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pct, err := parseUint("percentage", args[1])
			if err != nil {
				return err
			}
			if pct > 100 {
				return NewExitError(ExitCommandError, fmt.Sprintf("percentage %d is above 100", pct))
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.ResolveDispute(ctx, who, id, uint(pct))
			})
		},
	}
}

// NewExtendCommand creates the extend command.
func NewExtendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extend <vault-id> <blocks>",
		Short: "Push a vault's end height out",
		Long: `Extend a live vault's window by blocks. Either party or the admin may
extend; an elapsed window is reopened.

Example:
  escrow extend --as bob 1 144`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			delta, err := parseUint("blocks", args[1])
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.Extend(ctx, who, id, engine.Height(delta))
			})
		},
	}
}

// NewFlagCommand creates the flag command.
func NewFlagCommand(opts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "flag <vault-id>",
		Short: "Freeze a vault as suspicious",
		Long: `Flag a live vault. A flagged vault accepts metadata only.

Example:
  escrow flag --as admin 1 --reason "chargeback pattern"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.Flag(ctx, who, id, reason)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the vault is flagged")

	return cmd
}

// NewAnnotateCommand creates the annotate command.
func NewAnnotateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <vault-id> <category> <value>",
		Short: "Attach categorized metadata",
		Long: `Attach a metadata entry. The category must be one the policy lists.

Example:
  escrow annotate --as bob 1 invoice INV-42`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.AttachMetadata(ctx, who, id, args[1], args[2])
			})
		},
	}
}

// NewSetRecoveryCommand creates the set-recovery command.
func NewSetRecoveryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-recovery <vault-id> <address>",
		Short: "Record a backup principal",
		Long: `Record a recovery address on a pending vault. Only the depositor may set
it, and it must be a third party.

Example:
  escrow set-recovery --as alice 1 carol`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.SetRecoveryAddress(ctx, who, id, engine.Principal(args[1]))
			})
		},
	}
}

// NewTimeRecoveryCommand creates the time-recovery command.
func NewTimeRecoveryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "time-recovery <vault-id> <address> <delay>",
		Short: "Record a time-locked backup principal",
		Long: `Record a recovery address that unlocks delay blocks from now. The delay
must lie within the policy's recovery bounds.

Example:
  escrow time-recovery --as alice 1 carol 144`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			delay, err := parseUint("delay", args[2])
			if err != nil {
				return err
			}
			return runVaultOp(cmd, opts, func(ctx context.Context, eng *engine.Engine, who engine.Principal) (engine.Vault, error) {
				return eng.SetupTimeRecovery(ctx, who, id, engine.Principal(args[1]), engine.Height(delay))
			})
		},
	}
}
