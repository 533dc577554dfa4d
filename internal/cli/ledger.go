package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/store"
)

type holdingsView []store.Holding

func (h holdingsView) RenderText(w io.Writer) error {
	if len(h) == 0 {
		_, err := fmt.Fprintln(w, "no holdings")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tOWNER\tAMOUNT")
	for _, row := range h {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", row.AssetID, row.Owner, row.Amount)
	}
	return tw.Flush()
}

// withStore opens the database without building an engine.
func withStore(cmd *cobra.Command, opts *RootOptions, fn func(st *store.Store) error) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}()
	return fn(st)
}

// NewMintCommand creates the mint command.
func NewMintCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <asset> <owner> <amount>",
		Short: "Credit an owner with new units of an asset",
		Long: `Credit owner with amount new units of asset in the local ledger. Minting
is an operator action for funding test and demo accounts; it emits no
vault event.

Example:
  escrow mint gold alice 1000`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseUint("amount", args[2])
			if err != nil {
				return err
			}
			asset, owner := args[0], engine.Principal(args[1])
			return withStore(cmd, opts, func(st *store.Store) error {
				ctx := cmd.Context()
				if err := st.Ledger().Mint(ctx, asset, owner, amount); err != nil {
					return WrapExitError(ExitCommandError, "mint failed", err)
				}
				balance, err := st.Ledger().Balance(ctx, asset, owner)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read balance", err)
				}
				slog.Info("minted", "asset", asset, "owner", owner, "amount", amount)
				return newFormatter(cmd, opts).Success(holdingsView{{AssetID: asset, Owner: owner, Amount: balance}})
			})
		},
	}
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <asset> [owner]",
		Short: "Show ledger balances",
		Long: `Show one owner's balance of asset, or every non-zero holding of it when
owner is omitted. The custodian's holding is the value locked in vaults.

Examples:
  escrow balance gold alice
  escrow balance gold --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			asset := args[0]
			return withStore(cmd, opts, func(st *store.Store) error {
				ctx := cmd.Context()
				if len(args) == 2 {
					owner := engine.Principal(args[1])
					amount, err := st.Ledger().Balance(ctx, asset, owner)
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to read balance", err)
					}
					return newFormatter(cmd, opts).Success(holdingsView{{AssetID: asset, Owner: owner, Amount: amount}})
				}
				rows, err := st.Ledger().Holdings(ctx, asset)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read holdings", err)
				}
				return newFormatter(cmd, opts).Success(holdingsView(rows))
			})
		},
	}
}
