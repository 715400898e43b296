package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/docs"
)

// NewDocsCommand creates the docs command.
func NewDocsCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Generate the project documentation manifest",
		Long: `Compile the project and write a JSON manifest describing every node:
its relation, configuration, columns, tests, and lineage in both
directions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := getConfig()
			eng, err := createEngine(c)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			manifest := docs.Build(eng.Graph(), eng.Sources(), c.Environment, eng.Adapter().DialectName())

			path := output
			if path == "" {
				path = filepath.Join(c.DocsDir, "manifest.json")
			}
			if err := manifest.Write(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d nodes, %d edges, %d tests)\n",
				path, manifest.Stats.Nodes, manifest.Stats.Edges, manifest.Stats.Tests)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "manifest path (default: <docs_dir>/manifest.json)")

	return cmd
}
