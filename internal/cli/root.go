package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/escrow/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Database string
	Policy   string
	Caller   string
	Height   uint64
	LogLevel string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the escrow CLI. Flag
// defaults come from the ESCROW_* environment.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	env, envErr := config.Load()

	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Custodial escrow vaults",
		Long: `Lock funds in custody until a depositor, recipient or admin settles them.

Vaults, balances and the event log live in one SQLite database. Heights are
block counts; pass --height to pin the current one.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", envErr)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level, err := config.ParseLevel(opts.LogLevel)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid log level", err)
			}
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
			slog.SetDefault(slog.New(handler))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.Database, "db", env.Database, "path to SQLite database ($ESCROW_DB)")
	pf.StringVar(&opts.Policy, "policy", env.Policy, "CUE policy file or directory ($ESCROW_POLICY)")
	pf.StringVar(&opts.Caller, "as", env.Caller, "acting principal ($ESCROW_CALLER)")
	pf.Uint64Var(&opts.Height, "height", env.Height, "current block height, 0 for wall clock ($ESCROW_HEIGHT)")
	pf.StringVar(&opts.LogLevel, "log-level", env.LogLevel, "log level ($ESCROW_LOG_LEVEL)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewMintCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	for _, c := range vaultCommands(opts) {
		cmd.AddCommand(c)
	}
	cmd.AddCommand(NewDigestCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
