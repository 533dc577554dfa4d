package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/policy"
	"github.com/roach88/escrow/internal/store"
)

type initView struct {
	Database string `json:"database"`
}

func (v initView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "initialized %s\n", v.Database)
	return err
}

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and apply migrations",
		Long: `Create the SQLite database named by --db if it does not exist and bring
its schema up to date. Running init on an existing database is a no-op.

Example:
  escrow init --db ./escrow.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			if err := st.Close(); err != nil {
				slog.Error("error closing database", "error", err)
			}
			return newFormatter(cmd, opts).Success(initView{Database: opts.Database})
		},
	}
}

// NewPolicyCommand creates the policy command.
func NewPolicyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective policy",
		Long: `Load --policy (or the built-in policy), apply schema defaults and print
the result. Text output is CUE that loads back to the same policy.

Exit codes:
  0 - Policy is valid
  2 - Policy failed to load or validate

Examples:
  escrow policy
  escrow policy --policy ./deploy/policy.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy(opts)
			if err != nil {
				return err
			}
			f := newFormatter(cmd, opts)
			if opts.Format == "json" {
				return f.Success(pol)
			}
			src, err := policy.Format(pol)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to format policy", err)
			}
			_, err = cmd.OutOrStdout().Write(src)
			return err
		},
	}
}
