package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/loomworks/loom/internal/core"
	"github.com/loomworks/loom/internal/loader"
)

// seedBatchSize bounds the number of rows per INSERT statement.
const seedBatchSize = 500

// plan is the statement sequence that materializes one node. The whole
// sequence runs inside a single transaction; countQuery, if set, runs
// between pre and post and yields the node's RowsAffected.
type plan struct {
	pre        []string
	countQuery string
	post       []string
}

// executeNode materializes one node inside a single transaction. On any
// error the transaction rolls back, so readers never observe a
// half-built relation.
func (e *Engine) executeNode(ctx context.Context, m *core.Model, fullRefresh bool) (int64, error) {
	if schema := e.schemaFor(m); schema != "" {
		if err := e.db.EnsureSchema(ctx, schema); err != nil {
			return 0, fmt.Errorf("ensure schema %s: %w", schema, err)
		}
	}

	p, err := e.buildPlan(ctx, m, fullRefresh)
	if err != nil {
		return 0, err
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := runPlan(ctx, tx, p)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return rows, nil
}

func runPlan(ctx context.Context, tx Txer, p plan) (int64, error) {
	for _, stmt := range p.pre {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, err
		}
	}
	var rows int64
	if p.countQuery != "" {
		if err := tx.QueryValue(ctx, p.countQuery, &rows); err != nil {
			return 0, err
		}
	}
	for _, stmt := range p.post {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, err
		}
	}
	return rows, nil
}

// Txer is the transactional surface runPlan needs.
type Txer interface {
	Exec(ctx context.Context, statement string) (int64, error)
	QueryValue(ctx context.Context, query string, dest any) error
}

// buildPlan produces the statement sequence for a node's
// materialization strategy.
func (e *Engine) buildPlan(ctx context.Context, m *core.Model, fullRefresh bool) (plan, error) {
	switch m.Materialized {
	case core.MaterializationView:
		return viewPlan(m), nil

	case core.MaterializationTable:
		return tableSwapPlan(m), nil

	case core.MaterializationIncremental:
		if fullRefresh {
			return tableSwapPlan(m), nil
		}
		exists, err := e.db.RelationExists(ctx, m.Relation)
		if err != nil {
			return plan{}, fmt.Errorf("check relation %s: %w", m.Relation, err)
		}
		if !exists {
			// First run builds the full table.
			return tableSwapPlan(m), nil
		}
		return incrementalPlan(m), nil

	case core.MaterializationSeed:
		return e.seedPlan(m)
	}
	return plan{}, fmt.Errorf("unknown materialization %q", m.Materialized)
}

func viewPlan(m *core.Model) plan {
	return plan{
		pre: []string{
			fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", m.Relation, m.CompiledSQL),
		},
	}
}

// tableSwapPlan builds the new relation under a temporary name and
// swaps it in, so the old relation stays queryable until the new one is
// complete.
func tableSwapPlan(m *core.Model) plan {
	staging := m.Relation + "__loom_new"
	return plan{
		pre: []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s", staging),
			fmt.Sprintf("CREATE TABLE %s AS\n%s", staging, m.CompiledSQL),
			// The previous materialization may have been a view.
			fmt.Sprintf("DROP VIEW IF EXISTS %s", m.Relation),
			fmt.Sprintf("DROP TABLE IF EXISTS %s", m.Relation),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, bareName(m.Relation)),
		},
		countQuery: fmt.Sprintf("SELECT COUNT(*) FROM %s", m.Relation),
	}
}

// incrementalPlan merges the delta into the existing relation: rows
// matching the unique key are replaced, new rows are appended.
func incrementalPlan(m *core.Model) plan {
	delta := m.Relation + "__loom_delta"
	sel := m.CompiledSQL
	if m.IncrementalWhere != "" {
		sel = fmt.Sprintf("SELECT * FROM (\n%s\n) AS loom_delta_src WHERE %s", m.CompiledSQL, m.IncrementalWhere)
	}

	p := plan{
		pre: []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s", delta),
			fmt.Sprintf("CREATE TABLE %s AS\n%s", delta, sel),
		},
		countQuery: fmt.Sprintf("SELECT COUNT(*) FROM %s", delta),
		post: []string{
			fmt.Sprintf("DROP TABLE %s", delta),
		},
	}
	if m.UniqueKey != "" {
		p.pre = append(p.pre,
			fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s)", m.Relation, m.UniqueKey, m.UniqueKey, delta))
	}
	p.pre = append(p.pre, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", m.Relation, delta))
	return p
}

// seedPlan loads a CSV seed: the relation is dropped and recreated with
// columns in file order, then every row is inserted in batches.
func (e *Engine) seedPlan(m *core.Model) (plan, error) {
	header, rows, err := loader.ReadSeedRows(m.FilePath)
	if err != nil {
		return plan{}, err
	}

	types := inferColumnTypes(header, rows)
	cols := make([]string, len(header))
	for i, col := range header {
		cols[i] = col + " " + types[i]
	}

	p := plan{
		pre: []string{
			fmt.Sprintf("DROP VIEW IF EXISTS %s", m.Relation),
			fmt.Sprintf("DROP TABLE IF EXISTS %s", m.Relation),
			fmt.Sprintf("CREATE TABLE %s (%s)", m.Relation, strings.Join(cols, ", ")),
		},
		countQuery: fmt.Sprintf("SELECT COUNT(*) FROM %s", m.Relation),
	}

	for start := 0; start < len(rows); start += seedBatchSize {
		end := min(start+seedBatchSize, len(rows))
		var values []string
		for _, row := range rows[start:end] {
			if len(row) != len(header) {
				return plan{}, fmt.Errorf("seed %s: row has %d values, header has %d", m.Name, len(row), len(header))
			}
			lits := make([]string, len(row))
			for i, v := range row {
				lits[i] = seedLiteral(v, types[i])
			}
			values = append(values, "("+strings.Join(lits, ", ")+")")
		}
		p.pre = append(p.pre, fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			m.Relation, strings.Join(header, ", "), strings.Join(values, ", ")))
	}
	return p, nil
}

// inferColumnTypes picks the narrowest portable type each column's
// values all fit: BIGINT, DOUBLE PRECISION, or TEXT. Empty values are
// loaded as NULL and do not affect inference.
func inferColumnTypes(header []string, rows [][]string) []string {
	types := make([]string, len(header))
	for i := range header {
		allInt, allFloat, any := true, true, false
		for _, row := range rows {
			if i >= len(row) || row[i] == "" {
				continue
			}
			any = true
			if _, err := strconv.ParseInt(row[i], 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(row[i], 64); err != nil {
				allFloat = false
			}
		}
		switch {
		case any && allInt:
			types[i] = "BIGINT"
		case any && allFloat:
			types[i] = "DOUBLE PRECISION"
		default:
			types[i] = "TEXT"
		}
	}
	return types
}

// seedLiteral renders one CSV value as a SQL literal. Empty values load
// as NULL.
func seedLiteral(v, sqlType string) string {
	if v == "" {
		return "NULL"
	}
	if sqlType == "BIGINT" || sqlType == "DOUBLE PRECISION" {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// bareName strips the schema qualifier, for statements whose target
// must be unqualified (ALTER TABLE ... RENAME TO).
func bareName(relation string) string {
	if i := strings.LastIndex(relation, "."); i >= 0 {
		return relation[i+1:]
	}
	return relation
}
