package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultModelsDir, cfg.ModelsDir)
	assert.Equal(t, DefaultSeedsDir, cfg.SeedsDir)
	assert.Equal(t, DefaultEnv, cfg.Environment)
	assert.False(t, cfg.Verbose)
}

func TestLoad_ProjectFile(t *testing.T) {
	path := writeConfig(t, `
models_dir: transforms
environment: prod
defaults:
  materialized: table
  owner: data-eng
target:
  type: duckdb
  path: warehouse.db
  schema: analytics
`)

	cfg, err := Load(path, "", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "transforms"), cfg.ModelsDir)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "table", cfg.Defaults.Materialized)
	assert.Equal(t, "data-eng", cfg.Defaults.Owner)
	require.NotNil(t, cfg.Target)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Equal(t, "analytics", cfg.Target.Schema)
}

func TestLoad_EnvironmentOverridesTarget(t *testing.T) {
	path := writeConfig(t, `
target:
  type: duckdb
  path: dev.db
environments:
  prod:
    target:
      type: postgres
      host: db.internal
      database: warehouse
`)

	cfg, err := Load(path, "prod", nil)
	require.NoError(t, err)

	require.NotNil(t, cfg.Target)
	assert.Equal(t, "postgres", cfg.Target.Type)
	assert.Equal(t, "db.internal", cfg.Target.Host)
	assert.Equal(t, "prod", cfg.Environment)
}

func TestLoad_EnvVarOverridesFile(t *testing.T) {
	path := writeConfig(t, "models_dir: from_file\n")
	t.Setenv("LOOM_MODELS_DIR", "/abs/from_env")

	cfg, err := Load(path, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/abs/from_env", cfg.ModelsDir)
}

func TestLoad_FlagOverridesEverything(t *testing.T) {
	path := writeConfig(t, "parallelism: 2\n")
	t.Setenv("LOOM_PARALLELISM", "8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("parallelism", 0, "")
	require.NoError(t, flags.Parse([]string{"--parallelism", "16"}))

	cfg, err := Load(path, "", flags)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Parallelism)
}

func TestLoad_UnsetFlagDoesNotOverride(t *testing.T) {
	path := writeConfig(t, "parallelism: 2\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("parallelism", 0, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(path, "", flags)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Parallelism)
}

func TestAdapterConfig_DefaultsToMemoryDuckDB(t *testing.T) {
	cfg := &Config{}
	ac := cfg.AdapterConfig()
	assert.Equal(t, "duckdb", ac.Type)
	assert.Equal(t, ":memory:", ac.Path)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "", nil)
	require.Error(t, err)
}
