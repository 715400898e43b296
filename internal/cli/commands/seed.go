package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/engine"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load seed CSV files into the target",
		Long: `Load every seed file as a table. Seeds are leaf nodes of the graph;
loading them is a run restricted to seed nodes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := createEngine(getConfig())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			run, err := eng.Run(cmd.Context(), engine.RunOptions{SeedsOnly: true})
			if err != nil {
				return err
			}
			if len(run.Results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No seeds found")
				return nil
			}

			renderRunReport(cmd.OutOrStdout(), run, runOrder(eng, run))
			if run.Failed() {
				_, failed, _ := run.Counts()
				return fmt.Errorf("%d seed(s) failed", failed)
			}
			return nil
		},
	}
	return cmd
}
