// Command loom is the CLI entry point for the Loom transformation
// orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/loomworks/loom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
