// Package engine orchestrates Loom runs: it compiles the project into a
// dependency graph, schedules nodes concurrently in topological order,
// materializes each node against the target adapter, runs declarative
// tests, and reports results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loomworks/loom/internal/adapter"
	"github.com/loomworks/loom/internal/core"
	"github.com/loomworks/loom/internal/dag"
	"github.com/loomworks/loom/internal/loader"
	"github.com/loomworks/loom/internal/template"
)

// DefaultParallelism bounds the worker pool when no limit is configured.
const DefaultParallelism = 4

// Config holds engine configuration.
type Config struct {
	// ModelsDir is the path to the model definitions.
	ModelsDir string
	// SeedsDir is the path to the seed CSV files.
	SeedsDir string
	// Defaults are project-level model configuration defaults.
	Defaults loader.Defaults
	// Environment is the current environment name (dev, prod, ...).
	Environment string
	// Adapter is the target database configuration.
	Adapter adapter.Config
	// Parallelism bounds the scheduler worker pool.
	Parallelism int
	// Logger is the structured logger (discard if nil).
	Logger *slog.Logger
}

// Engine drives the compile and execution phases. The compile phase is
// single-threaded; the compiled graph is immutable during execution and
// needs no locking.
type Engine struct {
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	logger      *slog.Logger
	modelsDir   string
	seedsDir    string
	defaults    loader.Defaults
	environment string
	parallelism int

	graph   *dag.Graph
	models  map[string]*core.Model
	sources map[string]core.SourceDef
}

// New creates an engine. The target adapter is instantiated immediately
// (its naming rules are needed during compilation) but connected lazily,
// on first execution.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dbCfg := cfg.Adapter
	if dbCfg.Type == "" {
		dbCfg.Type = "duckdb"
	}
	db, err := adapter.New(dbCfg)
	if err != nil {
		return nil, err
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	logger.Debug("initializing engine",
		"models_dir", cfg.ModelsDir, "environment", env, "adapter", dbCfg.Type)

	return &Engine{
		db:          db,
		dbConfig:    dbCfg,
		logger:      logger,
		modelsDir:   cfg.ModelsDir,
		seedsDir:    cfg.SeedsDir,
		defaults:    cfg.Defaults,
		environment: env,
		parallelism: parallelism,
		graph:       dag.New(),
		models:      make(map[string]*core.Model),
		sources:     make(map[string]core.SourceDef),
	}, nil
}

// ensureConnected lazily connects the target adapter.
func (e *Engine) ensureConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	if e.dbConnected {
		return nil
	}
	e.logger.Debug("connecting to target", "adapter", e.dbConfig.Type)
	if err := e.db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to target: %w", err)
	}
	e.dbConnected = true
	return nil
}

// Close releases the adapter connection.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// Graph returns the compiled dependency graph.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Models returns all compiled nodes by name.
func (e *Engine) Models() map[string]*core.Model {
	return e.models
}

// Sources returns the declared raw sources by name.
func (e *Engine) Sources() map[string]core.SourceDef {
	return e.sources
}

// Adapter exposes the target adapter, mainly for tests and commands
// that inspect relations after a run.
func (e *Engine) Adapter() adapter.Adapter {
	return e.db
}

// target returns the template-visible target description.
func (e *Engine) target() template.Target {
	return template.Target{
		Type:     e.dbConfig.Type,
		Schema:   e.dbConfig.Schema,
		Database: e.dbConfig.Database,
	}
}

// schemaFor returns the schema a node's relation belongs to.
func (e *Engine) schemaFor(m *core.Model) string {
	if m.Schema != "" {
		return m.Schema
	}
	return e.dbConfig.Schema
}
