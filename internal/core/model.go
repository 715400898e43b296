// Package core holds the shared domain types for Loom: models, sources,
// test specifications, runs, and the error taxonomy used across the
// compiler and the execution engine.
package core

// Materialization defines how a model's result becomes a physical relation.
type Materialization string

// Materialization strategies.
const (
	MaterializationView        Materialization = "view"
	MaterializationTable       Materialization = "table"
	MaterializationIncremental Materialization = "incremental"
	MaterializationSeed        Materialization = "seed"
)

// Valid reports whether m is a known materialization strategy.
func (m Materialization) Valid() bool {
	switch m {
	case MaterializationView, MaterializationTable, MaterializationIncremental, MaterializationSeed:
		return true
	}
	return false
}

// NodeType distinguishes the kinds of nodes that can appear in the graph.
type NodeType string

// Node types.
const (
	NodeTypeModel  NodeType = "model"
	NodeTypeSeed   NodeType = "seed"
	NodeTypeSource NodeType = "source"
)

// Column describes one column of a model or source, with its
// documentation and declarative test specifications.
type Column struct {
	Name        string
	Description string
	Tests       []TestSpec
}

// Model is a single unit of transformation: a named, templated SQL query
// plus its resolved configuration. Seeds and declared raw sources are
// represented with the same type so the graph can treat them uniformly.
//
// A Model is created by the loader, its DependsOn set is populated during
// compilation, and it is never mutated once execution starts.
type Model struct {
	// Name uniquely identifies the node in the project.
	Name string
	// Type is model, seed, or source.
	Type NodeType
	// FilePath is the absolute path to the defining file (SQL or CSV).
	FilePath string

	// RawSQL is the templated query text as written in the model file.
	RawSQL string
	// CompiledSQL is the fully rendered query, set during compilation.
	CompiledSQL string

	Materialized Materialization
	// Schema is the target schema for the produced relation.
	Schema string
	// Relation is the fully qualified name of the produced relation
	// (schema.name), resolved during compilation.
	Relation string

	// UniqueKey is the match column for incremental merges.
	UniqueKey string
	// IncrementalWhere is an optional delta predicate for incremental
	// models. It may reference {{ this }}.
	IncrementalWhere string

	Description string
	Owner       string
	Tags        []string
	Meta        map[string]any
	Columns     []Column

	// DependsOn holds the names of nodes this model references,
	// populated by the reference resolver during compilation.
	DependsOn []string
}

// IsExecutable reports whether the node produces a relation during a run.
// Source nodes are pre-existing and are never dispatched.
func (m *Model) IsExecutable() bool {
	return m.Type != NodeTypeSource
}

// Tests returns all test specifications bound to this model's columns.
func (m *Model) Tests() []TestSpec {
	var specs []TestSpec
	for _, col := range m.Columns {
		for _, t := range col.Tests {
			t.Model = m.Name
			t.Column = col.Name
			specs = append(specs, t)
		}
	}
	return specs
}

// SourceDef is a declared raw source: a group of pre-existing tables that
// models may reference via source() but that no model produces.
type SourceDef struct {
	Name        string
	Schema      string
	Description string
	Tables      []SourceTable
}

// SourceTable is one table within a declared source.
type SourceTable struct {
	Name        string
	Description string
	Columns     []Column
}
