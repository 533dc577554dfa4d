package cli

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/ir"
	"github.com/roach88/escrow/internal/queryir"
	"github.com/roach88/escrow/internal/store"
)

type eventsView []engine.StoredEvent

func (ev eventsView) RenderText(w io.Writer) error {
	if len(ev) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tHEIGHT\tVAULT\tKIND\tBY")
	for _, e := range ev {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", e.Seq, e.Height, e.VaultID, e.Kind, e.Payload.Str("by"))
	}
	return tw.Flush()
}

// vaultDetail is a vault together with its event history.
type vaultDetail struct {
	Vault  engine.Vault         `json:"vault"`
	Events []engine.StoredEvent `json:"events"`
}

func (d vaultDetail) RenderText(w io.Writer) error {
	if err := (vaultView{d.Vault}).RenderText(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return eventsView(d.Events).RenderText(w)
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <vault-id>",
		Short: "Show a vault and its events",
		Long: `Print one vault's stored record followed by its events in sequence order.

Exit codes:
  0 - Vault found
  1 - No such vault
  2 - Command error

Example:
  escrow show 1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, opts, func(st *store.Store) error {
				ctx := cmd.Context()
				f := newFormatter(cmd, opts)
				v, ok, err := st.Get(ctx, id)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read vault", err)
				}
				if !ok {
					_ = f.Error(string(engine.CodeNotFound), fmt.Sprintf("vault %d does not exist", id), nil)
					return NewExitError(ExitFailure, fmt.Sprintf("vault %d not found", id))
				}
				events, err := st.EventsForVault(ctx, id)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read events", err)
				}
				return f.Success(vaultDetail{Vault: v, Events: events})
			})
		},
	}
}

type vaultsView []engine.Vault

func (vs vaultsView) RenderText(w io.Writer) error {
	if len(vs) == 0 {
		_, err := fmt.Fprintln(w, "no vaults")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tDEPOSITOR\tRECIPIENT\tAMOUNT\tASSET\tEND")
	for _, v := range vs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%d\n",
			v.ID, v.State, v.Depositor, v.Recipient, v.Amount, v.AssetID, v.EndHeight)
	}
	return tw.Flush()
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	States    []string
	Depositor string
	Recipient string
	Asset     string
	EndingBy  uint64
	Limit     int
}

// filter converts the flags to a store filter.
func (o ListOptions) filter(cmd *cobra.Command) (store.VaultFilter, error) {
	f := store.VaultFilter{
		Depositor: engine.Principal(o.Depositor),
		Recipient: engine.Principal(o.Recipient),
		AssetID:   o.Asset,
	}
	for _, name := range o.States {
		s, err := engine.ParseState(name)
		if err != nil {
			return store.VaultFilter{}, WrapExitError(ExitCommandError, "invalid --state", err)
		}
		f.States = append(f.States, s)
	}
	if cmd.Flags().Changed("ending-by") {
		h := engine.Height(o.EndingBy)
		f.EndingBy = &h
	}
	return f, nil
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var lo ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vaults",
		Long: `List vaults in id order. Filters combine with AND; --state may repeat
and matches any of the given states.

Examples:
  escrow list --state pending --state disputed
  escrow list --recipient bob --ending-by 5000 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := lo.filter(cmd)
			if err != nil {
				return err
			}
			return withStore(cmd, opts, func(st *store.Store) error {
				vaults, err := st.ListVaults(cmd.Context(), filter, lo.Limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list vaults", err)
				}
				return newFormatter(cmd, opts).Success(vaultsView(vaults))
			})
		},
	}

	cmd.Flags().StringSliceVar(&lo.States, "state", nil, "only vaults in this state (repeatable)")
	cmd.Flags().StringVar(&lo.Depositor, "depositor", "", "only vaults from this depositor")
	cmd.Flags().StringVar(&lo.Recipient, "recipient", "", "only vaults payable to this recipient")
	cmd.Flags().StringVar(&lo.Asset, "asset", "", "only vaults of this asset")
	cmd.Flags().Uint64Var(&lo.EndingBy, "ending-by", 0, "only vaults whose end height is at most this")
	cmd.Flags().IntVar(&lo.Limit, "limit", 0, "maximum number of vaults (0 = all)")

	return cmd
}

// NewEventsCommand creates the events command.
func NewEventsCommand(opts *RootOptions) *cobra.Command {
	var (
		vaultID uint64
		kinds   []string
		flow    string
		since   int64
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the event log",
		Long: `Print events in sequence order, optionally filtered.

Examples:
  escrow events --vault 1
  escrow events --kind dispute_opened --kind dispute_resolved
  escrow events --since 40 --limit 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var preds []queryir.Predicate
			if cmd.Flags().Changed("vault") {
				if vaultID > math.MaxInt64 {
					return NewExitError(ExitCommandError, fmt.Sprintf("vault id %d out of range", vaultID))
				}
				preds = append(preds, queryir.Equals{Field: "vault_id", Value: ir.IRInt(int64(vaultID))})
			}
			if len(kinds) > 0 {
				values := make([]ir.IRValue, len(kinds))
				for i, k := range kinds {
					values[i] = ir.IRString(k)
				}
				preds = append(preds, queryir.In{Field: "kind", Values: values})
			}
			if flow != "" {
				preds = append(preds, queryir.Equals{Field: "flow_token", Value: ir.IRString(flow)})
			}
			if since > 0 {
				preds = append(preds, queryir.Compare{Field: "seq", Op: queryir.Greater, Value: ir.IRInt(since)})
			}

			return withStore(cmd, opts, func(st *store.Store) error {
				events, err := st.QueryEvents(cmd.Context(), queryir.All(preds...), limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to query events", err)
				}
				return newFormatter(cmd, opts).Success(eventsView(events))
			})
		},
	}

	cmd.Flags().Uint64Var(&vaultID, "vault", 0, "only events of this vault")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only events of this kind (repeatable)")
	cmd.Flags().StringVar(&flow, "flow", "", "only events with this flow token")
	cmd.Flags().Int64Var(&since, "since", 0, "only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}
