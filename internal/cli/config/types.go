// Package config loads CLI configuration for Loom. Values are layered:
// defaults, then the project file (loom.yaml), then LOOM_* environment
// variables, then explicitly set command-line flags, later layers
// overriding earlier ones.
package config

import (
	"github.com/loomworks/loom/internal/adapter"
)

// Default configuration values.
const (
	DefaultModelsDir = "models"
	DefaultSeedsDir  = "seeds"
	DefaultEnv       = "dev"
	DefaultDocsDir   = "target"
)

// Config holds all CLI configuration options.
type Config struct {
	ModelsDir   string `koanf:"models_dir"`
	SeedsDir    string `koanf:"seeds_dir"`
	DocsDir     string `koanf:"docs_dir"`
	Environment string `koanf:"environment"`
	Parallelism int    `koanf:"parallelism"`
	Verbose     bool   `koanf:"verbose"`

	// Defaults are project-wide model configuration defaults.
	Defaults ModelDefaults `koanf:"defaults"`

	// Target is the database target. Environments may override it.
	Target *TargetConfig `koanf:"target"`

	// Environments holds per-environment overrides, selected with --env.
	Environments map[string]EnvConfig `koanf:"environments"`
}

// ModelDefaults are the project-level model defaults, the lowest
// configuration precedence scope.
type ModelDefaults struct {
	Materialized string `koanf:"materialized"`
	Schema       string `koanf:"schema"`
	Owner        string `koanf:"owner"`
}

// TargetConfig describes a database target in the project file.
type TargetConfig struct {
	Type     string            `koanf:"type"`
	Path     string            `koanf:"path"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	Username string            `koanf:"username"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	ModelsDir string        `koanf:"models_dir"`
	SeedsDir  string        `koanf:"seeds_dir"`
	Target    *TargetConfig `koanf:"target"`
}

// AdapterConfig converts the resolved target into the adapter's
// connection settings. A missing target defaults to in-memory DuckDB.
func (c *Config) AdapterConfig() adapter.Config {
	t := c.Target
	if t == nil {
		t = &TargetConfig{Type: "duckdb", Path: ":memory:"}
	}
	return adapter.Config{
		Type:     t.Type,
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.Username,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}
