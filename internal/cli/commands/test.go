package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/engine"
)

// NewTestCommand creates the test command.
func NewTestCommand() *cobra.Command {
	var (
		selectFlag string
		downstream bool
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run declarative data tests",
		Long: `Evaluate every test declared on the selected nodes' columns. Each
test counts failing rows in the materialized relation; a non-zero count
fails the test but never aborts the others.`,
		Example: `  # Test everything
  loom test

  # Test one model's assertions
  loom test --select customer_orders`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := createEngine(getConfig())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			results, err := eng.RunTests(cmd.Context(), engine.TestOptions{
				Select:     splitSelect(selectFlag),
				Downstream: downstream,
			})
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tests found")
				return nil
			}

			if failed := renderTestReport(cmd.OutOrStdout(), results); failed > 0 {
				return fmt.Errorf("%d test(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&selectFlag, "select", "s", "", "comma-separated node names to test")
	cmd.Flags().BoolVar(&downstream, "downstream", false, "include dependents of the selection")

	return cmd
}
