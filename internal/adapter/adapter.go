// Package adapter provides the target database interface the engine
// executes against, with implementations for DuckDB, Postgres, and
// SQLite behind a registry.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the connection settings for a target database.
type Config struct {
	// Type selects the adapter (duckdb, postgres, sqlite).
	Type string

	// Path is the database file for file-based targets. Use ":memory:"
	// for an in-memory database.
	Path string

	// Network settings for server-based targets.
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Schema is the default schema for produced relations.
	Schema string

	// Options holds additional driver-specific settings.
	Options map[string]string
}

// Rows wraps sql.Rows so callers do not depend on a specific driver.
type Rows struct {
	*sql.Rows
}

// Tx is a single transaction against the target. Every node's statement
// sequence runs inside exactly one Tx; on any error the engine rolls the
// whole sequence back, so readers never observe a partial relation.
type Tx interface {
	// Exec executes one statement and returns the rows affected.
	Exec(ctx context.Context, statement string) (int64, error)

	// QueryValue executes a single-value query inside the transaction.
	QueryValue(ctx context.Context, query string, dest any) error

	Commit() error
	Rollback() error
}

// Adapter is the narrow execution interface the engine drives. The
// physical database engine behind it is opaque to the rest of the
// system.
type Adapter interface {
	// Connect establishes the connection. Qualify and DialectName are
	// usable before Connect; everything else requires it.
	Connect(ctx context.Context, cfg Config) error
	Close() error

	// Exec executes a standalone statement outside any transaction.
	Exec(ctx context.Context, statement string) (int64, error)

	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string) (*Rows, error)

	// QueryValue executes a single-value query.
	QueryValue(ctx context.Context, query string, dest any) error

	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)

	// Qualify returns the fully qualified relation name for a schema
	// and table, in the form this target understands.
	Qualify(schema, name string) string

	// EnsureSchema creates the schema if the target supports schemas.
	EnsureSchema(ctx context.Context, schema string) error

	// RelationExists reports whether the named relation exists.
	RelationExists(ctx context.Context, relation string) (bool, error)

	// DialectName identifies the SQL dialect (duckdb, postgres, sqlite).
	DialectName() string
}

// base implements the database/sql-backed parts shared by all adapters.
type base struct {
	db *sql.DB
}

func (b *base) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *base) Exec(ctx context.Context, statement string) (int64, error) {
	if b.db == nil {
		return 0, ErrNotConnected
	}
	res, err := b.db.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}
	// Some drivers cannot report affected rows for DDL.
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (b *base) Query(ctx context.Context, query string) (*Rows, error) {
	if b.db == nil {
		return nil, ErrNotConnected
	}
	rows, err := b.db.QueryContext(ctx, query) //nolint:rowserrcheck // rows.Err checked by caller
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows}, nil
}

func (b *base) QueryValue(ctx context.Context, query string, dest any) error {
	if b.db == nil {
		return ErrNotConnected
	}
	return b.db.QueryRowContext(ctx, query).Scan(dest)
}

func (b *base) Begin(ctx context.Context) (Tx, error) {
	if b.db == nil {
		return nil, ErrNotConnected
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx adapts *sql.Tx to the Tx interface.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(ctx context.Context, statement string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (t *sqlTx) QueryValue(ctx context.Context, query string, dest any) error {
	return t.tx.QueryRowContext(ctx, query).Scan(dest)
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }
