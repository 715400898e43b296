package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/internal/core"
)

// PropertiesFileName is the directory-level properties file recognized
// in model and seed directories.
const PropertiesFileName = "schema.yaml"

// Properties is a directory-level configuration document. Its defaults
// sit between project defaults and inline frontmatter in precedence; its
// per-model entries carry documentation and test specifications.
type Properties struct {
	Defaults Defaults        `yaml:"defaults"`
	Models   []ModelSpec     `yaml:"models"`
	Seeds    []ModelSpec     `yaml:"seeds"`
	Sources  []SourceSpec    `yaml:"sources"`
}

// Defaults are directory-scoped configuration defaults.
type Defaults struct {
	Materialized string `yaml:"materialized"`
	Schema       string `yaml:"schema"`
	Owner        string `yaml:"owner"`
}

// ModelSpec is the per-model entry of a properties file.
type ModelSpec struct {
	Name             string       `yaml:"name"`
	Description      string       `yaml:"description"`
	Materialized     string       `yaml:"materialized"`
	Schema           string       `yaml:"schema"`
	UniqueKey        string       `yaml:"unique_key"`
	IncrementalWhere string       `yaml:"incremental_where"`
	Owner            string       `yaml:"owner"`
	Tags             []string     `yaml:"tags"`
	Columns          []ColumnSpec `yaml:"columns"`
}

// SourceSpec declares a raw source: pre-existing tables models may
// reference via source().
type SourceSpec struct {
	Name        string            `yaml:"name"`
	Schema      string            `yaml:"schema"`
	Description string            `yaml:"description"`
	Tables      []SourceTableSpec `yaml:"tables"`
}

// SourceTableSpec is one table of a declared source.
type SourceTableSpec struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Columns     []ColumnSpec `yaml:"columns"`
}

// ColumnSpec documents a column and declares its tests.
type ColumnSpec struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tests       []TestSpec `yaml:"tests"`
}

// TestSpec is one declarative test entry. In YAML it is either a bare
// kind ("unique", "not_null") or a map with kind-specific settings:
//
//	tests:
//	  - unique
//	  - relationships:
//	      to: ref('stg_customers')
//	      field: customer_id
//	  - accepted_values:
//	      values: [placed, shipped]
//	  - expression: "amount >= 0"
type TestSpec struct {
	Kind       core.TestKind
	To         string
	Field      string
	Values     []string
	Expression string
}

// UnmarshalYAML accepts both the scalar and the map form of a test.
func (t *TestSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		kind := core.TestKind(value.Value)
		if !kind.Valid() {
			return fmt.Errorf("unknown test kind %q", value.Value)
		}
		t.Kind = kind
		return nil
	}

	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("test must be a kind name or a single-key mapping")
	}

	kind := core.TestKind(value.Content[0].Value)
	if !kind.Valid() {
		return fmt.Errorf("unknown test kind %q", value.Content[0].Value)
	}
	t.Kind = kind

	body := value.Content[1]
	switch kind {
	case core.TestRelationships:
		var args struct {
			To    string `yaml:"to"`
			Field string `yaml:"field"`
		}
		if err := body.Decode(&args); err != nil {
			return fmt.Errorf("relationships test: %w", err)
		}
		if args.To == "" || args.Field == "" {
			return fmt.Errorf("relationships test requires 'to' and 'field'")
		}
		t.To = args.To
		t.Field = args.Field
	case core.TestAcceptedValues:
		var args struct {
			Values []string `yaml:"values"`
		}
		if err := body.Decode(&args); err != nil {
			return fmt.Errorf("accepted_values test: %w", err)
		}
		if len(args.Values) == 0 {
			return fmt.Errorf("accepted_values test requires a non-empty values list")
		}
		t.Values = args.Values
	case core.TestExpression:
		var expr string
		if err := body.Decode(&expr); err != nil {
			return fmt.Errorf("expression test: %w", err)
		}
		if expr == "" {
			return fmt.Errorf("expression test requires a predicate")
		}
		t.Expression = expr
	default:
		// unique / not_null take no arguments; tolerate an empty map.
	}
	return nil
}

// toCore converts a ColumnSpec to the core representation.
func (c ColumnSpec) toCore() core.Column {
	col := core.Column{Name: c.Name, Description: c.Description}
	for _, t := range c.Tests {
		col.Tests = append(col.Tests, core.TestSpec{
			Kind:       t.Kind,
			To:         t.To,
			Field:      t.Field,
			Values:     t.Values,
			Expression: t.Expression,
		})
	}
	return col
}

// loadProperties reads the properties file of a directory, if present.
func loadProperties(dir string) (*Properties, error) {
	path := filepath.Join(dir, PropertiesFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Properties{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var props Properties
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, &core.ConfigError{File: path, Message: fmt.Sprintf("invalid properties YAML: %v", err)}
	}

	if props.Defaults.Materialized != "" {
		mat := core.Materialization(props.Defaults.Materialized)
		if !mat.Valid() || mat == core.MaterializationSeed {
			return nil, &core.ConfigError{
				File:    path,
				Message: fmt.Sprintf("invalid default materialized value %q", props.Defaults.Materialized),
			}
		}
	}

	return &props, nil
}
