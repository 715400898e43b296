// Package docs generates project documentation artifacts: a JSON
// manifest describing every node, its columns, tests, and lineage.
package docs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loomworks/loom/internal/core"
	"github.com/loomworks/loom/internal/dag"
)

// Manifest is the machine-readable description of a compiled project.
// It is regenerated from scratch on every docs build; nothing in it is
// ever read back by the engine.
type Manifest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Environment string    `json:"environment"`
	Adapter     string    `json:"adapter"`

	Nodes   map[string]Node   `json:"nodes"`
	Sources map[string]Source `json:"sources"`
	Stats   Stats             `json:"stats"`
}

// Node documents one graph node.
type Node struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Relation     string   `json:"relation"`
	Schema       string   `json:"schema,omitempty"`
	Materialized string   `json:"materialized,omitempty"`
	Description  string   `json:"description,omitempty"`
	Owner        string   `json:"owner,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	FilePath     string   `json:"file_path,omitempty"`
	RawSQL       string   `json:"raw_sql,omitempty"`
	CompiledSQL  string   `json:"compiled_sql,omitempty"`

	Columns []Column `json:"columns,omitempty"`

	// DependsOn and ReferencedBy describe the lineage edges around this
	// node, both directions resolved for direct consumption by a UI.
	DependsOn    []string `json:"depends_on,omitempty"`
	ReferencedBy []string `json:"referenced_by,omitempty"`
}

// Column documents one column, including its declared tests.
type Column struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tests       []string `json:"tests,omitempty"`
}

// Source documents a declared raw source group.
type Source struct {
	Name        string   `json:"name"`
	Schema      string   `json:"schema,omitempty"`
	Description string   `json:"description,omitempty"`
	Tables      []string `json:"tables"`
}

// Stats summarizes the project shape.
type Stats struct {
	Nodes   int `json:"nodes"`
	Models  int `json:"models"`
	Seeds   int `json:"seeds"`
	Sources int `json:"sources"`
	Edges   int `json:"edges"`
	Tests   int `json:"tests"`
}

// Build assembles a manifest from a compiled graph.
func Build(graph *dag.Graph, sources map[string]core.SourceDef, environment, adapterName string) *Manifest {
	m := &Manifest{
		GeneratedAt: time.Now().UTC(),
		Environment: environment,
		Adapter:     adapterName,
		Nodes:       make(map[string]Node),
		Sources:     make(map[string]Source),
	}

	for _, node := range graph.Nodes() {
		doc := Node{
			Name:         node.Name,
			Type:         string(node.Type),
			Relation:     node.Relation,
			Schema:       node.Schema,
			Description:  node.Description,
			Owner:        node.Owner,
			Tags:         node.Tags,
			FilePath:     node.FilePath,
			DependsOn:    graph.Parents(node.Name),
			ReferencedBy: graph.Children(node.Name),
		}
		if node.Type != core.NodeTypeSource {
			doc.Materialized = string(node.Materialized)
			doc.RawSQL = node.RawSQL
			doc.CompiledSQL = node.CompiledSQL
		}
		for _, col := range node.Columns {
			c := Column{Name: col.Name, Description: col.Description}
			for _, t := range col.Tests {
				c.Tests = append(c.Tests, string(t.Kind))
			}
			doc.Columns = append(doc.Columns, c)
			m.Stats.Tests += len(col.Tests)
		}
		m.Nodes[node.Name] = doc

		m.Stats.Nodes++
		switch node.Type {
		case core.NodeTypeModel:
			m.Stats.Models++
		case core.NodeTypeSeed:
			m.Stats.Seeds++
		case core.NodeTypeSource:
			m.Stats.Sources++
		}
	}
	m.Stats.Edges = graph.EdgeCount()

	for name, src := range sources {
		doc := Source{Name: name, Schema: src.Schema, Description: src.Description}
		for _, t := range src.Tables {
			doc.Tables = append(doc.Tables, t.Name)
		}
		m.Sources[name] = doc
	}

	return m
}

// Write serializes the manifest to path, creating parent directories.
func (m *Manifest) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create docs directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
