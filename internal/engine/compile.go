package engine

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/loomworks/loom/internal/core"
	"github.com/loomworks/loom/internal/dag"
	"github.com/loomworks/loom/internal/loader"
	"github.com/loomworks/loom/internal/template"
)

// Compile loads the project and turns it into an executable graph:
// every template is rendered exactly once, reference macros are
// substituted and captured as edges, and the result is validated for
// unresolved references and cycles. After Compile returns nil the
// graph and every node's CompiledSQL are final.
func (e *Engine) Compile() error {
	l := &loader.Loader{
		ModelsDir: e.modelsDir,
		SeedsDir:  e.seedsDir,
		Defaults:  e.defaults,
		Logger:    e.logger,
	}
	project, err := l.Load()
	if err != nil {
		return err
	}

	nodes := make(map[string]*core.Model)

	// Declared sources become graph nodes named <source>.<table> so
	// lineage can start at the raw tables.
	for _, src := range project.Sources {
		e.sources[src.Name] = src
		for _, t := range src.Tables {
			node := &core.Model{
				Name:        src.Name + "." + t.Name,
				Type:        core.NodeTypeSource,
				Schema:      src.Schema,
				Relation:    e.db.Qualify(src.Schema, t.Name),
				Description: t.Description,
				Columns:     t.Columns,
			}
			if prev, dup := nodes[node.Name]; dup {
				return &core.ConfigError{
					Node:    node.Name,
					Message: fmt.Sprintf("source table declared twice (%s)", prev.Relation),
				}
			}
			nodes[node.Name] = node
		}
	}

	for _, m := range project.Models {
		if _, dup := nodes[m.Name]; dup {
			return &core.ConfigError{
				Node:    m.Name,
				File:    m.FilePath,
				Message: "node name collides with a declared source table",
			}
		}
		m.Relation = e.db.Qualify(e.schemaFor(m), m.Name)
		nodes[m.Name] = m
	}

	resolver := &registryResolver{nodes: nodes}
	var unresolved []error
	for _, m := range project.Models {
		if m.Type != core.NodeTypeModel {
			continue
		}
		bad, err := e.compileModel(m, resolver)
		if err != nil {
			return err
		}
		for _, name := range bad {
			msg := fmt.Sprintf("reference to unknown node %q", name)
			if n, ok := nodes[name]; ok && n.Type == core.NodeTypeSource {
				msg = fmt.Sprintf("%q is a source table, reference it with source()", name)
			}
			unresolved = append(unresolved, &core.CompileError{Node: m.Name, Message: msg})
		}
	}
	if len(unresolved) > 0 {
		return errors.Join(unresolved...)
	}

	graph := dag.New()
	for _, n := range nodes {
		graph.AddNode(n)
	}
	for _, m := range project.Models {
		for _, dep := range m.DependsOn {
			if err := graph.AddEdge(dep, m.Name); err != nil {
				return err
			}
		}
	}

	if _, err := graph.TopoSort(); err != nil {
		return err
	}

	if err := resolveTestTargets(nodes, resolver); err != nil {
		return err
	}

	e.graph = graph
	e.models = nodes
	e.logger.Debug("project compiled",
		"nodes", graph.Len(), "edges", graph.EdgeCount())
	return nil
}

// compileModel renders one model's template and captures its
// dependency set. It returns the reference names the resolver refused;
// any such name makes the whole compile fail once every model has had
// the chance to report its own.
func (e *Engine) compileModel(m *core.Model, resolver template.Resolver) ([]string, error) {
	this := template.This{
		Name:     m.Name,
		Schema:   e.schemaFor(m),
		Relation: m.Relation,
	}
	ctx, err := template.NewContext(configValues(m), e.environment, e.target(), this, resolver)
	if err != nil {
		return nil, &core.ConfigError{Node: m.Name, File: m.FilePath, Message: err.Error()}
	}

	compiled, err := template.RenderString(m.RawSQL, m.FilePath, ctx)
	if err != nil {
		return nil, asParseError(m, err)
	}
	m.CompiledSQL = compiled

	// The incremental predicate goes through the same template pipeline
	// so it can reference this and config.
	if m.IncrementalWhere != "" {
		where, err := template.RenderString(m.IncrementalWhere, m.FilePath, ctx)
		if err != nil {
			return nil, asParseError(m, err)
		}
		m.IncrementalWhere = where
	}

	m.DependsOn = ctx.Dependencies()
	return ctx.Unresolved(), nil
}

// configValues is the configuration surface a template may read under
// the "config" global. Only resolved, compile-time-known values appear.
func configValues(m *core.Model) map[string]any {
	cfg := map[string]any{
		"name":         m.Name,
		"materialized": string(m.Materialized),
		"schema":       m.Schema,
		"unique_key":   m.UniqueKey,
		"owner":        m.Owner,
		"tags":         m.Tags,
	}
	if m.Meta != nil {
		cfg["meta"] = m.Meta
	}
	return cfg
}

// asParseError converts a template failure into the compile-time error
// taxonomy, keeping the source position.
func asParseError(m *core.Model, err error) error {
	var terr *template.Error
	if errors.As(err, &terr) {
		return &core.ParseError{
			Node:    m.Name,
			File:    m.FilePath,
			Line:    terr.Pos.Line,
			Message: terr.Message,
		}
	}
	return &core.ParseError{Node: m.Name, File: m.FilePath, Message: err.Error()}
}

// registryResolver resolves reference macros against the full node set.
type registryResolver struct {
	nodes map[string]*core.Model
}

func (r *registryResolver) ResolveRef(name string) (string, string, bool) {
	m, ok := r.nodes[name]
	if !ok || m.Type == core.NodeTypeSource {
		return "", "", false
	}
	return m.Relation, m.Name, true
}

func (r *registryResolver) ResolveSource(sourceName, tableName string) (string, string, bool) {
	name := sourceName + "." + tableName
	m, ok := r.nodes[name]
	if !ok || m.Type != core.NodeTypeSource {
		return "", "", false
	}
	return m.Relation, m.Name, true
}

var (
	testRefPattern    = regexp.MustCompile(`^ref\(\s*'([^']+)'\s*\)$`)
	testSourcePattern = regexp.MustCompile(`^source\(\s*'([^']+)'\s*,\s*'([^']+)'\s*\)$`)
)

// resolveTestTargets resolves the "to" field of relationships tests to
// a concrete relation. The field accepts the same macros as model SQL.
func resolveTestTargets(nodes map[string]*core.Model, r *registryResolver) error {
	for _, m := range nodes {
		for ci := range m.Columns {
			col := &m.Columns[ci]
			for ti := range col.Tests {
				t := &col.Tests[ti]
				if t.Kind != core.TestRelationships {
					continue
				}
				rel, err := resolveRelationMacro(t.To, r)
				if err != nil {
					return &core.CompileError{
						Node:    m.Name,
						Message: fmt.Sprintf("relationships test on %s: %v", col.Name, err),
					}
				}
				t.ToRelation = rel
			}
		}
	}
	return nil
}

func resolveRelationMacro(expr string, r *registryResolver) (string, error) {
	if m := testRefPattern.FindStringSubmatch(expr); m != nil {
		rel, _, ok := r.ResolveRef(m[1])
		if !ok {
			return "", fmt.Errorf("reference to unknown node %q", m[1])
		}
		return rel, nil
	}
	if m := testSourcePattern.FindStringSubmatch(expr); m != nil {
		rel, _, ok := r.ResolveSource(m[1], m[2])
		if !ok {
			return "", fmt.Errorf("reference to unknown source table %q", m[1]+"."+m[2])
		}
		return rel, nil
	}
	if expr == "" {
		return "", fmt.Errorf("missing 'to'")
	}
	// A bare relation name passes through untouched.
	return expr, nil
}
