package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/docs"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dag",
		Short:   "Print the dependency graph as a tree",
		Aliases: []string{"lineage"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := createEngine(getConfig())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			out := docs.RenderLineage(eng.Graph())
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No nodes found")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	return cmd
}
