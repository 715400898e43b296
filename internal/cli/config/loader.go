package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

var configFileUsed string

// ConfigFileUsed returns the project file the last Load read, if any.
func ConfigFileUsed() string {
	return configFileUsed
}

// findConfigFile locates the project file. Priority: explicit path,
// then loom.yaml or loom.yml in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"loom.yaml", "loom.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load layers configuration from defaults, the project file, LOOM_*
// environment variables, and explicitly set flags, in ascending
// precedence. environment selects the per-environment overrides block.
func Load(cfgFile, environment string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"models_dir":  DefaultModelsDir,
		"seeds_dir":   DefaultSeedsDir,
		"docs_dir":    DefaultDocsDir,
		"environment": DefaultEnv,
		"verbose":     false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// LOOM_MODELS_DIR -> models_dir
	if err := k.Load(env.Provider("LOOM_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LOOM_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "env" {
				return "environment", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if environment != "" {
		cfg.Environment = environment
	}
	applyEnvironment(&cfg)

	// Paths in the project file are relative to its directory.
	if configFileUsed != "" {
		base := filepath.Dir(configFileUsed)
		cfg.ModelsDir = resolveRelative(cfg.ModelsDir, base)
		cfg.SeedsDir = resolveRelative(cfg.SeedsDir, base)
		cfg.DocsDir = resolveRelative(cfg.DocsDir, base)
	}

	return &cfg, nil
}

// applyEnvironment overlays the selected environment's overrides.
func applyEnvironment(cfg *Config) {
	envCfg, ok := cfg.Environments[cfg.Environment]
	if !ok {
		return
	}
	if envCfg.ModelsDir != "" {
		cfg.ModelsDir = envCfg.ModelsDir
	}
	if envCfg.SeedsDir != "" {
		cfg.SeedsDir = envCfg.SeedsDir
	}
	if envCfg.Target != nil {
		cfg.Target = envCfg.Target
	}
}

func resolveRelative(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
