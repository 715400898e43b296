package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/core"
)

// TestOptions control which nodes' tests run.
type TestOptions struct {
	Select     []string
	Downstream bool
}

// RunTests evaluates every declarative test bound to the selected
// nodes. Each test compiles to a query counting failing rows; zero
// means pass. A test failure is a result, not an error: errors are
// returned only when testing cannot proceed at all.
func (e *Engine) RunTests(ctx context.Context, opts TestOptions) ([]core.TestResult, error) {
	if err := e.ensureConnected(ctx); err != nil {
		return nil, err
	}

	graph := e.graph
	if len(opts.Select) > 0 {
		g, err := e.selectGraph(RunOptions{Select: opts.Select, Downstream: opts.Downstream})
		if err != nil {
			return nil, err
		}
		graph = g
	}

	var results []core.TestResult
	for _, m := range graph.Nodes() {
		for _, spec := range m.Tests() {
			results = append(results, e.runTest(ctx, spec, m.Relation))
		}
	}

	passed, failed := 0, 0
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	e.logger.Info("tests finished", "passed", passed, "failed", failed)
	return results, nil
}

// runTest evaluates one test specification against a relation.
func (e *Engine) runTest(ctx context.Context, spec core.TestSpec, relation string) core.TestResult {
	result := core.TestResult{
		Model:    spec.Model,
		Column:   spec.Column,
		Kind:     spec.Kind,
		Relation: relation,
	}
	start := time.Now()

	query, err := buildTestQuery(spec, relation)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	failing, err := e.queryCount(ctx, query)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("test errored",
			"node", spec.Model, "column", spec.Column, "kind", string(spec.Kind), "error", err)
		return result
	}

	result.FailingRows = failing
	result.Passed = failing == 0
	if !result.Passed {
		e.logger.Warn("test failed",
			"node", spec.Model, "column", spec.Column, "kind", string(spec.Kind), "failing_rows", failing)
	}
	return result
}

// buildTestQuery compiles a test specification into a query returning
// a single count of failing rows.
func buildTestQuery(spec core.TestSpec, relation string) (string, error) {
	col := spec.Column
	switch spec.Kind {
	case core.TestUnique:
		// Counts distinct duplicated values, not total duplicate rows.
		return fmt.Sprintf(
			"SELECT COUNT(*) FROM (SELECT %s FROM %s WHERE %s IS NOT NULL GROUP BY %s HAVING COUNT(*) > 1) AS dup",
			col, relation, col, col), nil

	case core.TestNotNull:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", relation, col), nil

	case core.TestRelationships:
		if spec.ToRelation == "" || spec.Field == "" {
			return "", fmt.Errorf("relationships test on %s.%s is missing its target", spec.Model, col)
		}
		return fmt.Sprintf(
			"SELECT COUNT(*) FROM %s AS c WHERE c.%s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %s AS p WHERE p.%s = c.%s)",
			relation, col, spec.ToRelation, spec.Field, col), nil

	case core.TestAcceptedValues:
		if len(spec.Values) == 0 {
			return "", fmt.Errorf("accepted_values test on %s.%s has no values", spec.Model, col)
		}
		quoted := make([]string, len(spec.Values))
		for i, v := range spec.Values {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (%s)",
			relation, col, col, strings.Join(quoted, ", ")), nil

	case core.TestExpression:
		if spec.Expression == "" {
			return "", fmt.Errorf("expression test on %s.%s has no predicate", spec.Model, col)
		}
		// Rows where the predicate is false or null both count as failing.
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE (NOT (%s)) OR ((%s) IS NULL)",
			relation, spec.Expression, spec.Expression), nil
	}
	return "", fmt.Errorf("unknown test kind %q", spec.Kind)
}

// queryCount runs a single-value count query outside any transaction.
func (e *Engine) queryCount(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := e.db.QueryValue(ctx, query, &n); err != nil {
		return 0, err
	}
	return n, nil
}
