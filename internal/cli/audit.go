package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/store"
)

// auditView combines the conservation replay with state reconciliation.
type auditView struct {
	engine.AuditReport
	Mismatches []store.Mismatch `json:"mismatches,omitempty"`
}

func (a auditView) ok() bool {
	return a.AuditReport.OK() && len(a.Mismatches) == 0
}

func (a auditView) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%d vaults, %d settled, %d still locked\n", a.Vaults, a.Settled, a.Locked)
	for _, f := range a.Findings {
		fmt.Fprintf(w, "  vault %d: %s (locked %d, paid %d)\n", f.VaultID, f.Reason, f.Locked, f.Paid)
	}
	for _, m := range a.Mismatches {
		if m.Missing {
			fmt.Fprintf(w, "  vault %d: stored as %s but has no events\n", m.VaultID, m.Stored)
			continue
		}
		fmt.Fprintf(w, "  vault %d: stored as %s, log says %s\n", m.VaultID, m.Stored, m.Replayed)
	}
	if a.ok() {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	return nil
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check the event log for conservation and consistency",
		Long: `Replay the event log and check that every vault paid out exactly what it
locked, at most once, and that each stored vault state matches the state its
events lead to.

Exit codes:
  0 - No findings
  1 - Findings reported
  2 - Command error

Example:
  escrow audit --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store) error {
				ctx := cmd.Context()
				events, err := st.ReadEvents(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read event log", err)
				}
				mismatches, err := st.Reconcile(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to reconcile", err)
				}

				view := auditView{AuditReport: engine.Audit(events), Mismatches: mismatches}
				f := newFormatter(cmd, opts)
				if view.ok() {
					return f.Success(view)
				}

				problems := len(view.Findings) + len(view.Mismatches)
				if opts.Format == "json" {
					_ = f.Error(ErrCodeAudit, fmt.Sprintf("%d finding(s)", problems), view)
				} else if err := view.RenderText(f.Writer); err != nil {
					return err
				}
				return NewExitError(ExitFailure, fmt.Sprintf("audit found %d problem(s)", problems))
			})
		},
	}
}
