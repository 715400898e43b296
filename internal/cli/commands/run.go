package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/engine"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		selectFlag  string
		downstream  bool
		fullRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute models in dependency order",
		Long: `Compile the project and materialize every selected node in
dependency order. Independent nodes run concurrently; a failing node
skips its dependents without stopping the rest of the graph.`,
		Example: `  # Run everything
  loom run

  # Run two models and whatever depends on them
  loom run --select stg_customers,stg_orders --downstream

  # Rebuild incremental models from scratch
  loom run --full-refresh`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := createEngine(getConfig())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			run, err := eng.Run(cmd.Context(), engine.RunOptions{
				Select:      splitSelect(selectFlag),
				Downstream:  downstream,
				FullRefresh: fullRefresh,
			})
			if err != nil {
				return err
			}

			renderRunReport(cmd.OutOrStdout(), run, runOrder(eng, run))
			if run.Failed() {
				_, failed, _ := run.Counts()
				return fmt.Errorf("%d node(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&selectFlag, "select", "s", "", "comma-separated node names to run")
	cmd.Flags().BoolVar(&downstream, "downstream", false, "include dependents of the selection")
	cmd.Flags().BoolVar(&fullRefresh, "full-refresh", false, "rebuild incremental models from scratch")

	return cmd
}
