package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/core"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var nodeType string

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List the project's nodes",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := createEngine(getConfig())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"Node", "Type", "Materialized", "Relation", "Depends on"})

			count := 0
			for _, m := range eng.Graph().Nodes() {
				if nodeType != "" && string(m.Type) != nodeType {
					continue
				}
				materialized := string(m.Materialized)
				if m.Type == core.NodeTypeSource {
					materialized = "-"
				}
				tw.AppendRow(table.Row{
					m.Name, string(m.Type), materialized, m.Relation,
					strings.Join(m.DependsOn, ", "),
				})
				count++
			}
			tw.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d node(s)\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeType, "type", "", "filter by node type (model, seed, source)")

	return cmd
}
