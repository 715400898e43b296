// Package cli provides the command-line interface for Loom.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/internal/cli/commands"
	"github.com/loomworks/loom/internal/cli/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		envFlag string
	)

	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom - SQL transformation orchestrator",
		Long: `Loom compiles a project of templated SQL models into a dependency
graph and executes it against a database target: models materialize in
dependency order, declarative tests verify the results, and a docs
manifest captures the full lineage.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "init" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(cfgFile, envFlag, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := slog.New(slog.DiscardHandler)
			if cfg.Verbose {
				logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
				if used := config.ConfigFileUsed(); used != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", used)
				}
			}

			commands.Setup(cfg, logger)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project file (default: ./loom.yaml)")
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "", "environment to use (dev, prod, ...)")
	rootCmd.PersistentFlags().String("models-dir", "", "path to the models directory")
	rootCmd.PersistentFlags().String("seeds-dir", "", "path to the seeds directory")
	rootCmd.PersistentFlags().Int("parallelism", 0, "maximum concurrent model executions")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("env", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dev", "staging", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())
	rootCmd.AddCommand(commands.NewTestCommand())
	rootCmd.AddCommand(commands.NewDocsCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewDAGCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExitCode maps an Execute error to a process exit code: 2 for static
// (config, parse, compile) failures, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if commands.IsStaticError(err) {
		return 2
	}
	return 1
}
