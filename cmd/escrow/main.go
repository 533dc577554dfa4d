// Command escrow runs custodial escrow vaults over a local SQLite database.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/escrow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
