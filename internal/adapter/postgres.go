package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func() Adapter { return &Postgres{} })
}

// Postgres targets a PostgreSQL server via the pgx stdlib driver.
type Postgres struct {
	base
	cfg Config
}

// Connect opens a connection pool to the configured server.
func (a *Postgres) Connect(ctx context.Context, cfg Config) error {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
	if opts := encodeOptions(cfg.Options); opts != "" {
		dsn += "?" + opts
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	a.db = db
	a.cfg = cfg
	return nil
}

func (a *Postgres) Qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func (a *Postgres) EnsureSchema(ctx context.Context, schema string) error {
	if schema == "" || schema == "public" {
		return nil
	}
	_, err := a.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	return err
}

func (a *Postgres) RelationExists(ctx context.Context, rel string) (bool, error) {
	return informationSchemaHas(ctx, a.db, rel, "public")
}

func (a *Postgres) DialectName() string { return "postgres" }

// informationSchemaHas checks information_schema for a relation of any
// kind (table or view). Shared by the adapters that support schemas.
func informationSchemaHas(ctx context.Context, db *sql.DB, rel, defaultSchema string) (bool, error) {
	if db == nil {
		return false, ErrNotConnected
	}
	schema := defaultSchema
	name := rel
	if parts := strings.SplitN(rel, ".", 2); len(parts) == 2 {
		schema, name = parts[0], parts[1]
	}
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`,
		schema, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func encodeOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(opts))
	for k, v := range opts {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "&")
}

var _ Adapter = (*Postgres)(nil)
