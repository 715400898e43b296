package template

import (
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// Resolver maps reference macros to materialized relation names.
// The second return reports whether the name is known; unknown names
// still render (as themselves) so the graph builder can report every
// unresolved reference at once.
type Resolver interface {
	// ResolveRef resolves ref(name) to the relation of the named model
	// and the graph node name to depend on.
	ResolveRef(name string) (relation string, node string, known bool)
	// ResolveSource resolves source(sourceName, tableName) likewise.
	ResolveSource(sourceName, tableName string) (relation string, node string, known bool)
}

// Context carries the compile-time values a template may read: the
// node's merged configuration, the environment name, the target, and the
// node's own identity. It also captures the dependency set as ref() and
// source() are called during rendering.
type Context struct {
	resolver Resolver
	globals  starlark.StringDict
	file     string

	deps map[string]bool
	// unresolved holds the names the resolver refused. They render as
	// themselves so every bad reference surfaces in one compile pass.
	unresolved map[string]bool
}

// NewContext builds a render context. config must contain only
// configuration-known values; anything it holds is visible to templates
// under the "config" global.
func NewContext(config map[string]any, env string, target Target, this This, resolver Resolver) (*Context, error) {
	ctx := &Context{
		resolver:   resolver,
		deps:       make(map[string]bool),
		unresolved: make(map[string]bool),
	}

	cfgVal, err := goToStarlark(config)
	if err != nil {
		return nil, err
	}
	if config == nil {
		cfgVal = starlark.NewDict(0)
	}

	ctx.globals = starlark.StringDict{
		"config": cfgVal,
		"env":    starlark.String(env),
		"target": target.toStarlark(),
		"this":   relation{name: this.Name, schema: this.Schema, relation: this.Relation},
		"ref":    starlark.NewBuiltin("ref", ctx.refBuiltin),
		"source": starlark.NewBuiltin("source", ctx.sourceBuiltin),
	}
	return ctx, nil
}

// Dependencies returns the node names captured during rendering, sorted.
func (c *Context) Dependencies() []string {
	out := make([]string, 0, len(c.deps))
	for d := range c.deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Unresolved returns the reference names the resolver refused, sorted.
// A non-empty result means the rendered SQL contains raw names and must
// not be executed.
func (c *Context) Unresolved() []string {
	out := make([]string, 0, len(c.unresolved))
	for d := range c.unresolved {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// refBuiltin implements ref(name). The argument must be a string; the
// call records a dependency edge and substitutes the target relation.
func (c *Context) refBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs("ref", args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	rel, node, known := c.resolver.ResolveRef(name)
	if !known {
		// Record the raw name so the graph builder reports it.
		c.deps[name] = true
		c.unresolved[name] = true
		return relation{name: name, relation: name}, nil
	}
	c.deps[node] = true
	return relation{name: name, relation: rel}, nil
}

// sourceBuiltin implements source(sourceName, tableName).
func (c *Context) sourceBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var sourceName, tableName string
	if err := starlark.UnpackPositionalArgs("source", args, kwargs, 2, &sourceName, &tableName); err != nil {
		return nil, err
	}
	rel, node, known := c.resolver.ResolveSource(sourceName, tableName)
	if !known {
		c.deps[sourceName+"."+tableName] = true
		c.unresolved[sourceName+"."+tableName] = true
		return relation{name: tableName, relation: sourceName + "." + tableName}, nil
	}
	c.deps[node] = true
	return relation{name: tableName, relation: rel}, nil
}

// Render evaluates a parsed template into its final SQL string.
func Render(tmpl *Template, ctx *Context) (string, error) {
	r := &renderer{ctx: ctx, file: tmpl.File}
	var sb strings.Builder
	if err := r.renderNodes(&sb, tmpl.Nodes, nil); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

// RenderString parses and renders input in one step.
func RenderString(input, file string, ctx *Context) (string, error) {
	tmpl, err := Parse(input, file)
	if err != nil {
		return "", err
	}
	return Render(tmpl, ctx)
}

type renderer struct {
	ctx  *Context
	file string
}

func (r *renderer) renderNodes(sb *strings.Builder, nodes []Node, locals starlark.StringDict) error {
	for _, n := range nodes {
		switch node := n.(type) {
		case *Text:
			sb.WriteString(node.Value)

		case *Expr:
			v, err := r.eval(node.Source, node.Pos(), locals)
			if err != nil {
				return err
			}
			sb.WriteString(valueToSQL(v))

		case *If:
			taken := false
			for _, branch := range node.Branches {
				v, err := r.eval(branch.Condition, branch.pos, locals)
				if err != nil {
					return err
				}
				if bool(v.Truth()) {
					if err := r.renderNodes(sb, branch.Body, locals); err != nil {
						return err
					}
					taken = true
					break
				}
			}
			if !taken && node.Else != nil {
				if err := r.renderNodes(sb, node.Else, locals); err != nil {
					return err
				}
			}

		case *For:
			v, err := r.eval(node.Iter, node.Pos(), locals)
			if err != nil {
				return err
			}
			iter := starlark.Iterate(v)
			if iter == nil {
				return errAt(node.Pos(), "'for' requires an iterable, got %s", v.Type())
			}
			func() {
				defer iter.Done()
				var item starlark.Value
				for iter.Next(&item) {
					inner := make(starlark.StringDict, len(locals)+1)
					for k, lv := range locals {
						inner[k] = lv
					}
					inner[node.Var] = item
					if e := r.renderNodes(sb, node.Body, inner); e != nil {
						err = e
						return
					}
				}
			}()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// eval evaluates one Starlark expression against the context globals
// plus any loop-local bindings.
func (r *renderer) eval(expr string, pos Position, locals starlark.StringDict) (starlark.Value, error) {
	env := r.ctx.globals
	if len(locals) > 0 {
		combined := make(starlark.StringDict, len(env)+len(locals))
		for k, v := range env {
			combined[k] = v
		}
		for k, v := range locals {
			combined[k] = v
		}
		env = combined
	}

	thread := &starlark.Thread{Name: r.file}
	v, err := starlark.Eval(thread, r.file, expr, env)
	if err != nil {
		return nil, wrapAt(pos, err, "error evaluating %q", expr)
	}
	return v, nil
}
