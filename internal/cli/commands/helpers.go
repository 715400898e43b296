// Package commands implements the loom subcommands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/loomworks/loom/internal/cli/config"
	"github.com/loomworks/loom/internal/core"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/loader"
)

var (
	cfg    *config.Config
	logger = slog.New(slog.DiscardHandler)
)

// Setup injects the loaded configuration and logger. Called by the root
// command before any subcommand runs.
func Setup(c *config.Config, l *slog.Logger) {
	cfg = c
	logger = l
}

func getConfig() *config.Config {
	if cfg == nil {
		return &config.Config{
			ModelsDir:   config.DefaultModelsDir,
			SeedsDir:    config.DefaultSeedsDir,
			DocsDir:     config.DefaultDocsDir,
			Environment: config.DefaultEnv,
		}
	}
	return cfg
}

// createEngine builds a compiled engine from the CLI configuration.
func createEngine(c *config.Config) (*engine.Engine, error) {
	eng, err := engine.New(engine.Config{
		ModelsDir: c.ModelsDir,
		SeedsDir:  c.SeedsDir,
		Defaults: loader.Defaults{
			Materialized: c.Defaults.Materialized,
			Schema:       c.Defaults.Schema,
			Owner:        c.Defaults.Owner,
		},
		Environment: c.Environment,
		Adapter:     c.AdapterConfig(),
		Parallelism: c.Parallelism,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Compile(); err != nil {
		_ = eng.Close()
		return nil, err
	}
	return eng, nil
}

// splitSelect parses a comma-separated --select value.
func splitSelect(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsStaticError reports whether err belongs to the static half of the
// error taxonomy: configuration, template, or graph problems that abort
// before any execution.
func IsStaticError(err error) bool {
	var (
		confErr    *core.ConfigError
		parseErr   *core.ParseError
		compileErr *core.CompileError
	)
	return errors.As(err, &confErr) || errors.As(err, &parseErr) || errors.As(err, &compileErr)
}

// statusColor maps node and run statuses to display colors.
func statusColor(status string) text.Color {
	switch status {
	case "success", "completed":
		return text.FgGreen
	case "failed":
		return text.FgRed
	case "skipped", "partial":
		return text.FgYellow
	}
	return text.Reset
}

// renderRunReport prints a per-node result table plus a summary line.
func renderRunReport(w io.Writer, run *core.Run, order []string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Node", "Status", "Rows", "Duration"})

	for _, name := range order {
		res, ok := run.Results[name]
		if !ok {
			continue
		}
		status := text.Colors{statusColor(string(res.Status))}.Sprint(res.Status)
		tw.AppendRow(table.Row{res.Name, status, res.RowsAffected, res.Duration().Round(time.Millisecond)})
	}
	tw.Render()

	success, failed, skipped := run.Counts()
	fmt.Fprintf(w, "\nRun %s: %s (%d succeeded, %d failed, %d skipped) in %s\n",
		run.ID, text.Colors{statusColor(string(run.Status))}.Sprint(run.Status),
		success, failed, skipped,
		run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	for _, name := range order {
		if res, ok := run.Results[name]; ok && res.Status == core.NodeStatusFailed {
			fmt.Fprintf(w, "  %s: %s\n", res.Name, res.Error)
		}
	}
}

// renderTestReport prints a per-test result table plus a summary line.
func renderTestReport(w io.Writer, results []core.TestResult) (failed int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Node", "Column", "Test", "Status", "Failing rows"})

	for _, r := range results {
		status := "pass"
		detail := ""
		switch {
		case r.Error != "":
			status = "error"
			detail = r.Error
		case !r.Passed:
			status = "fail"
			failed++
		}
		color := text.FgGreen
		if status != "pass" {
			color = text.FgRed
		}
		row := table.Row{r.Model, r.Column, string(r.Kind), text.Colors{color}.Sprint(status), r.FailingRows}
		tw.AppendRow(row)
		if detail != "" {
			tw.AppendRow(table.Row{"", "", "", "", detail})
		}
		if r.Error != "" {
			failed++
		}
	}
	tw.Render()

	fmt.Fprintf(w, "\n%d of %d tests passed\n", len(results)-failed, len(results))
	return failed
}

// runOrder returns node names in a stable report order: topological,
// restricted to the nodes present in the run.
func runOrder(eng *engine.Engine, run *core.Run) []string {
	sorted, err := eng.Graph().TopoSort()
	if err != nil {
		names := make([]string, 0, len(run.Results))
		for name := range run.Results {
			names = append(names, name)
		}
		return names
	}
	var out []string
	for _, m := range sorted {
		if _, ok := run.Results[m.Name]; ok {
			out = append(out, m.Name)
		}
	}
	return out
}
