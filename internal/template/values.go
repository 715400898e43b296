package template

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Target is the database target exposed to templates as the "target"
// global. Credentials are deliberately not exposed.
type Target struct {
	Type     string
	Schema   string
	Database string
}

func (t Target) toStarlark() starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"type":     starlark.String(t.Type),
		"schema":   starlark.String(t.Schema),
		"database": starlark.String(t.Database),
	})
}

// This describes the node being rendered, exposed as the "this" global.
// Interpolating {{ this }} yields the node's fully qualified relation.
type This struct {
	Name     string
	Schema   string
	Relation string
}

// relation is a Starlark value that interpolates as a bare SQL
// identifier rather than a quoted string.
type relation struct {
	name     string
	schema   string
	relation string
}

var _ starlark.HasAttrs = relation{}

func (r relation) String() string        { return r.relation }
func (r relation) Type() string          { return "relation" }
func (r relation) Freeze()               {}
func (r relation) Truth() starlark.Bool  { return starlark.Bool(r.relation != "") }
func (r relation) Hash() (uint32, error) { return starlark.String(r.relation).Hash() }

func (r relation) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(r.name), nil
	case "schema":
		return starlark.String(r.schema), nil
	case "relation":
		return starlark.String(r.relation), nil
	}
	return nil, nil
}

func (r relation) AttrNames() []string {
	return []string{"name", "relation", "schema"}
}

// goToStarlark converts configuration values into Starlark values.
// Supported: nil, string, int, int64, float64, bool, []string, []any,
// map[string]any.
func goToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case bool:
		return starlark.Bool(val), nil
	case []string:
		items := make([]starlark.Value, len(val))
		for i, s := range val {
			items[i] = starlark.String(s)
		}
		return starlark.NewList(items), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported config value type %T", v)
	}
}

// valueToSQL converts an evaluated expression result into SQL text.
// Strings interpolate without quotes; None interpolates as nothing.
func valueToSQL(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.String:
		return string(val)
	case starlark.NoneType:
		return ""
	default:
		return v.String()
	}
}
