package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func() Adapter { return &DuckDB{} })
}

// DuckDB targets an embedded DuckDB database, the default for local
// development.
type DuckDB struct {
	base
	cfg Config
}

// Connect opens the DuckDB database. An empty path means in-memory.
func (a *DuckDB) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}
	a.db = db
	a.cfg = cfg
	return nil
}

func (a *DuckDB) Qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func (a *DuckDB) EnsureSchema(ctx context.Context, schema string) error {
	if schema == "" || schema == "main" {
		return nil
	}
	_, err := a.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	return err
}

func (a *DuckDB) RelationExists(ctx context.Context, rel string) (bool, error) {
	if a.db == nil {
		return false, ErrNotConnected
	}
	schema := "main"
	name := rel
	if parts := strings.SplitN(rel, ".", 2); len(parts) == 2 {
		schema, name = parts[0], parts[1]
	}
	var count int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		schema, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (a *DuckDB) DialectName() string { return "duckdb" }

var _ Adapter = (*DuckDB)(nil)
