package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/core"
)

func TestCompile_ResolvesReferencesAndEdges(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/schema.yaml": `
sources:
  - name: raw
    schema: raw
    tables:
      - name: customers
`,
		"models/stg_customers.sql": `SELECT * FROM {{ source('raw', 'customers') }}`,
		"models/dim_customers.sql": `SELECT * FROM {{ ref('stg_customers') }}`,
	})

	require.NoError(t, eng.Compile())

	stg, ok := eng.Graph().Node("stg_customers")
	require.True(t, ok)
	assert.Equal(t, []string{"raw.customers"}, stg.DependsOn)
	assert.Equal(t, "SELECT * FROM raw.customers", stg.CompiledSQL)
	assert.Equal(t, "main.stg_customers", stg.Relation)

	dim, ok := eng.Graph().Node("dim_customers")
	require.True(t, ok)
	assert.Equal(t, []string{"stg_customers"}, dim.DependsOn)
	assert.Equal(t, "SELECT * FROM main.stg_customers", dim.CompiledSQL)

	assert.Equal(t, []string{"dim_customers"}, eng.Graph().Children("stg_customers"))
}

func TestCompile_RendersTemplateOnce(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/conditional.sql": `SELECT 1{% if env == "prod" %} WHERE false{% endif %}`,
	})

	require.NoError(t, eng.Compile())
	m, _ := eng.Graph().Node("conditional")
	assert.Equal(t, "SELECT 1", m.CompiledSQL)
	assert.Empty(t, m.DependsOn)
}

func TestCompile_UnresolvedReference(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/orphan.sql": `SELECT * FROM {{ ref('missing') }}`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var cerr *core.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "orphan", cerr.Node)
	assert.Contains(t, cerr.Message, `"missing"`)
}

func TestCompile_ReportsEveryUnresolvedReference(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/a.sql": `SELECT * FROM {{ ref('nope_one') }}`,
		"models/b.sql": `SELECT * FROM {{ ref('nope_two') }}`,
	})

	err := eng.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope_one")
	assert.Contains(t, err.Error(), "nope_two")
}

func TestCompile_RefToSourceTableIsError(t *testing.T) {
	// ref() must not resolve a source table: the raw name would be
	// interpolated instead of the source's qualified relation.
	eng, _ := newTestEngine(t, map[string]string{
		"models/schema.yaml": `
sources:
  - name: raw
    schema: landing
    tables:
      - name: orders
`,
		"models/stg_orders.sql": `SELECT * FROM {{ ref('raw.orders') }}`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var cerr *core.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "stg_orders", cerr.Node)
	assert.Contains(t, cerr.Message, "source table")
	assert.Contains(t, cerr.Message, "source()")
}

func TestCompile_UnknownSourceTable(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/stg_orders.sql": `SELECT * FROM {{ source('raw', 'orders') }}`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var cerr *core.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "stg_orders", cerr.Node)
	assert.Contains(t, cerr.Message, `"raw.orders"`)
}

func TestCompile_CycleReportsPath(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/a.sql": `SELECT * FROM {{ ref('b') }}`,
		"models/b.sql": `SELECT * FROM {{ ref('a') }}`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var cerr *core.CompileError
	require.ErrorAs(t, err, &cerr)
	require.NotEmpty(t, cerr.Cycle)
	assert.Equal(t, cerr.Cycle[0], cerr.Cycle[len(cerr.Cycle)-1])
	assert.Contains(t, err.Error(), "->")
}

func TestCompile_TemplateErrorBecomesParseError(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/bad.sql": "SELECT 1\n{% if x %}never closed",
	})

	err := eng.Compile()
	require.Error(t, err)
	var perr *core.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad", perr.Node)
	assert.Positive(t, perr.Line)
}

func TestCompile_NonLiteralRefArgument(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/dynamic.sql": `SELECT * FROM {{ ref(42) }}`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var perr *core.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, strings.ToLower(perr.Message), "ref")
}

func TestCompile_ResolvesRelationshipTestTargets(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/stg_customers.sql": `SELECT 1 AS customer_id`,
		"models/orders.sql":        `SELECT * FROM {{ ref('stg_customers') }}`,
		"models/schema.yaml": `
models:
  - name: orders
    columns:
      - name: customer_id
        tests:
          - relationships:
              to: ref('stg_customers')
              field: customer_id
`,
	})

	require.NoError(t, eng.Compile())
	m, _ := eng.Graph().Node("orders")
	tests := m.Tests()
	require.Len(t, tests, 1)
	assert.Equal(t, "main.stg_customers", tests[0].ToRelation)
}

func TestCompile_RelationshipTestToUnknownNode(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/orders.sql": `SELECT 1 AS customer_id`,
		"models/schema.yaml": `
models:
  - name: orders
    columns:
      - name: customer_id
        tests:
          - relationships:
              to: ref('nonexistent')
              field: id
`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var cerr *core.CompileError
	require.ErrorAs(t, err, &cerr)
}

func TestCompile_SchemaFromDirectory(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/staging/stg_orders.sql": `SELECT 1`,
	})

	require.NoError(t, eng.Compile())
	m, _ := eng.Graph().Node("stg_orders")
	assert.Equal(t, "staging", m.Schema)
	assert.Equal(t, "staging.stg_orders", m.Relation)
}

func TestCompile_SeedsBecomeNodes(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"seeds/countries.csv":   "code,name\nus,United States\n",
		"models/geography.sql":  `SELECT * FROM {{ ref('countries') }}`,
	})

	require.NoError(t, eng.Compile())
	seed, ok := eng.Graph().Node("countries")
	require.True(t, ok)
	assert.Equal(t, core.NodeTypeSeed, seed.Type)
	assert.Equal(t, core.MaterializationSeed, seed.Materialized)

	geo, _ := eng.Graph().Node("geography")
	assert.Equal(t, []string{"countries"}, geo.DependsOn)
}

func TestCompile_IncrementalWhereIsRendered(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/events.sql": `/*---
materialized: incremental
unique_key: event_id
incremental_where: "ts > (SELECT MAX(ts) FROM {{ this }})"
---*/
SELECT 1 AS event_id, 2 AS ts`,
	})

	require.NoError(t, eng.Compile())
	m, _ := eng.Graph().Node("events")
	assert.Equal(t, "ts > (SELECT MAX(ts) FROM main.events)", m.IncrementalWhere)
}

func TestCompile_ModelCollidesWithSourceTable(t *testing.T) {
	eng, _ := newTestEngine(t, map[string]string{
		"models/schema.yaml": `
sources:
  - name: raw
    tables:
      - name: orders
`,
		"models/raw.orders.sql": `/*---
name: raw.orders
---*/
SELECT 1`,
	})

	err := eng.Compile()
	require.Error(t, err)
	var conf *core.ConfigError
	assert.True(t, errors.As(err, &conf))
}
