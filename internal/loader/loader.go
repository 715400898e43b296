// Package loader is the source registry: it walks a project tree,
// reads model definitions and their declarative configuration, and
// resolves configuration precedence (project < directory < inline
// frontmatter, later overriding earlier field by field).
package loader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomworks/loom/internal/core"
)

// Loader loads raw model definitions and configuration from a project
// tree.
type Loader struct {
	// ModelsDir is the root of the model definition files.
	ModelsDir string
	// SeedsDir is the root of the seed CSV files.
	SeedsDir string
	// Defaults are the project-level configuration defaults, the lowest
	// precedence scope.
	Defaults Defaults

	Logger *slog.Logger
}

// Project is the loaded, precedence-resolved project content.
type Project struct {
	Models  []*core.Model
	Sources []core.SourceDef
}

// Load walks the project tree and returns every model, seed, and
// declared source with its configuration fully merged.
func (l *Loader) Load() (*Project, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	project := &Project{}
	seen := make(map[string]string) // node name -> defining file
	sourceNames := make(map[string]bool)

	if err := l.loadModels(project, seen, sourceNames, logger); err != nil {
		return nil, err
	}
	if err := l.loadSeeds(project, seen, logger); err != nil {
		return nil, err
	}

	sort.Slice(project.Models, func(i, j int) bool {
		return project.Models[i].Name < project.Models[j].Name
	})
	logger.Debug("project loaded",
		"models", len(project.Models), "sources", len(project.Sources))
	return project, nil
}

func (l *Loader) loadModels(project *Project, seen map[string]string, sourceNames map[string]bool, logger *slog.Logger) error {
	if l.ModelsDir == "" {
		return nil
	}
	if _, err := os.Stat(l.ModelsDir); os.IsNotExist(err) {
		return nil
	}

	// Properties files are loaded once per directory.
	props := make(map[string]*Properties)
	dirProps := func(dir string) (*Properties, error) {
		if p, ok := props[dir]; ok {
			return p, nil
		}
		p, err := loadProperties(dir)
		if err != nil {
			return nil, err
		}
		props[dir] = p
		return p, nil
	}

	return filepath.WalkDir(l.ModelsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".sql") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		dir := filepath.Dir(path)
		p, err := dirProps(dir)
		if err != nil {
			return err
		}

		// Collect source declarations the first time a directory is
		// visited.
		for _, src := range p.Sources {
			if sourceNames[src.Name] {
				continue
			}
			sourceNames[src.Name] = true
			project.Sources = append(project.Sources, sourceToCore(src))
		}

		model, err := l.loadModel(path, dir, p)
		if err != nil {
			return err
		}

		if prev, dup := seen[model.Name]; dup {
			return &core.ConfigError{
				Node:    model.Name,
				File:    path,
				Message: fmt.Sprintf("duplicate model name (already defined in %s)", prev),
			}
		}
		seen[model.Name] = path
		project.Models = append(project.Models, model)
		logger.Debug("model loaded", "model", model.Name, "file", path)
		return nil
	})
}

// loadModel reads one model file and merges its configuration from the
// three scopes.
func (l *Loader) loadModel(path, dir string, props *Properties) (*core.Model, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	fm, body, err := ExtractFrontmatter(string(content), path)
	if err != nil {
		return nil, err
	}

	name := fm.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".sql")
	}

	model := &core.Model{
		Name:     name,
		Type:     core.NodeTypeModel,
		FilePath: path,
		RawSQL:   body,
		Meta:     fm.Meta,
	}

	// Project defaults, lowest precedence.
	applyDefaults(model, l.Defaults)
	// Directory defaults.
	applyDefaults(model, props.Defaults)
	// Directory per-model entry.
	if spec := findSpec(props.Models, name); spec != nil {
		applySpec(model, spec)
	}
	// Inline frontmatter, highest precedence.
	applyFrontmatter(model, fm)

	if model.Materialized == "" {
		model.Materialized = core.MaterializationView
	}
	if model.Schema == "" {
		// Derive the schema from the model's directory, the way the
		// relation would naturally be grouped.
		if rel, err := filepath.Rel(l.ModelsDir, dir); err == nil && rel != "." {
			model.Schema = strings.ReplaceAll(rel, string(filepath.Separator), "_")
		}
	}
	if model.Materialized == core.MaterializationIncremental && model.UniqueKey == "" && model.IncrementalWhere == "" {
		// Append-only incrementals are allowed, but a model with neither
		// unique_key nor predicate is almost always a mistake.
		if model.Meta == nil || model.Meta["allow_append_only"] != true {
			return nil, &core.ConfigError{
				Node:    name,
				File:    path,
				Message: "incremental model needs unique_key or incremental_where (set meta.allow_append_only to override)",
			}
		}
	}

	return model, nil
}

func applyDefaults(m *core.Model, d Defaults) {
	if d.Materialized != "" {
		m.Materialized = core.Materialization(d.Materialized)
	}
	if d.Schema != "" {
		m.Schema = d.Schema
	}
	if d.Owner != "" {
		m.Owner = d.Owner
	}
}

func applySpec(m *core.Model, s *ModelSpec) {
	if s.Materialized != "" {
		m.Materialized = core.Materialization(s.Materialized)
	}
	if s.Schema != "" {
		m.Schema = s.Schema
	}
	if s.UniqueKey != "" {
		m.UniqueKey = s.UniqueKey
	}
	if s.IncrementalWhere != "" {
		m.IncrementalWhere = s.IncrementalWhere
	}
	if s.Description != "" {
		m.Description = s.Description
	}
	if s.Owner != "" {
		m.Owner = s.Owner
	}
	if len(s.Tags) > 0 {
		m.Tags = s.Tags
	}
	mergeColumns(m, s.Columns)
}

func applyFrontmatter(m *core.Model, fm *Frontmatter) {
	if fm.Materialized != "" {
		m.Materialized = core.Materialization(fm.Materialized)
	}
	if fm.Schema != "" {
		m.Schema = fm.Schema
	}
	if fm.UniqueKey != "" {
		m.UniqueKey = fm.UniqueKey
	}
	if fm.IncrementalWhere != "" {
		m.IncrementalWhere = fm.IncrementalWhere
	}
	if fm.Description != "" {
		m.Description = fm.Description
	}
	if fm.Owner != "" {
		m.Owner = fm.Owner
	}
	if len(fm.Tags) > 0 {
		m.Tags = fm.Tags
	}
	mergeColumns(m, fm.Columns)
}

// mergeColumns overlays column specs onto the model, matching by column
// name: later scopes override descriptions and replace test lists.
func mergeColumns(m *core.Model, specs []ColumnSpec) {
	for _, spec := range specs {
		col := spec.toCore()
		replaced := false
		for i := range m.Columns {
			if m.Columns[i].Name == col.Name {
				if col.Description != "" {
					m.Columns[i].Description = col.Description
				}
				if len(col.Tests) > 0 {
					m.Columns[i].Tests = col.Tests
				}
				replaced = true
				break
			}
		}
		if !replaced {
			m.Columns = append(m.Columns, col)
		}
	}
}

func findSpec(specs []ModelSpec, name string) *ModelSpec {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}

func sourceToCore(s SourceSpec) core.SourceDef {
	schema := s.Schema
	if schema == "" {
		schema = s.Name
	}
	def := core.SourceDef{
		Name:        s.Name,
		Schema:      schema,
		Description: s.Description,
	}
	for _, t := range s.Tables {
		table := core.SourceTable{Name: t.Name, Description: t.Description}
		for _, c := range t.Columns {
			table.Columns = append(table.Columns, c.toCore())
		}
		def.Tables = append(def.Tables, table)
	}
	return def
}
