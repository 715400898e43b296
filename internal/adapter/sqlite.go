package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

func init() {
	Register("sqlite", func() Adapter { return &SQLite{} })
}

// SQLite targets an embedded SQLite database. SQLite has no schemas, so
// relations are qualified as schema_name with an underscore.
type SQLite struct {
	base
	cfg Config
}

// Connect opens the SQLite database. An empty path means in-memory.
func (a *SQLite) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}
	a.db = db
	a.cfg = cfg
	return nil
}

func (a *SQLite) Qualify(schema, name string) string {
	if schema == "" || schema == "main" {
		return name
	}
	return schema + "_" + name
}

func (a *SQLite) EnsureSchema(_ context.Context, _ string) error {
	return nil
}

func (a *SQLite) RelationExists(ctx context.Context, rel string) (bool, error) {
	if a.db == nil {
		return false, ErrNotConnected
	}
	var count int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
		rel).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *SQLite) DialectName() string { return "sqlite" }

var _ Adapter = (*SQLite)(nil)
