package loader

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/internal/core"
)

// Frontmatter is the inline configuration block of a model file. It is
// the highest-precedence configuration scope and overrides directory and
// project settings field by field.
type Frontmatter struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	Materialized     string         `yaml:"materialized"`
	Schema           string         `yaml:"schema"`
	UniqueKey        string         `yaml:"unique_key"`
	IncrementalWhere string         `yaml:"incremental_where"`
	Owner            string         `yaml:"owner"`
	Tags             []string       `yaml:"tags"`
	Columns          []ColumnSpec   `yaml:"columns"`
	Meta             map[string]any `yaml:"meta"`
}

// frontmatterPattern matches a leading /*--- ... ---*/ block.
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// frontmatterFields are the recognized keys; anything else is a config
// error (use meta for extensions).
var frontmatterFields = map[string]bool{
	"name":              true,
	"description":       true,
	"materialized":      true,
	"schema":            true,
	"unique_key":        true,
	"incremental_where": true,
	"owner":             true,
	"tags":              true,
	"columns":           true,
	"meta":              true,
}

// ExtractFrontmatter splits a model file into its frontmatter block and
// the SQL body. A file without frontmatter returns a zero Frontmatter.
func ExtractFrontmatter(content, file string) (*Frontmatter, string, error) {
	m := frontmatterPattern.FindStringSubmatch(content)
	if m == nil {
		return &Frontmatter{}, content, nil
	}
	body := strings.TrimSpace(frontmatterPattern.ReplaceAllString(content, ""))

	// Decode into a map first so unknown keys are rejected with a
	// useful message rather than silently dropped.
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(m[1]), &raw); err != nil {
		return nil, "", &core.ConfigError{File: file, Message: fmt.Sprintf("invalid frontmatter YAML: %v", err)}
	}
	for key := range raw {
		if !frontmatterFields[key] {
			return nil, "", &core.ConfigError{
				File:    file,
				Message: fmt.Sprintf("unknown frontmatter field %q (use meta for custom fields)", key),
			}
		}
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
		return nil, "", &core.ConfigError{File: file, Message: fmt.Sprintf("invalid frontmatter: %v", err)}
	}

	if fm.Materialized != "" {
		mat := core.Materialization(fm.Materialized)
		if !mat.Valid() || mat == core.MaterializationSeed {
			return nil, "", &core.ConfigError{
				File:    file,
				Message: fmt.Sprintf("invalid materialized value %q: must be view, table, or incremental", fm.Materialized),
			}
		}
	}

	return &fm, body, nil
}
