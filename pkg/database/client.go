// Package database provides the PostgreSQL persistence layer: connection
// pooling, migrations, and the repository methods implementing
// pkg/blueprint.Store, pkg/pipeline.Store, and pkg/queue.Store.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection settings.
type Config struct {
	Host string
	Port int
	User string
	Password string
	Database string
	SSLMode string

	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client wraps a pooled *sql.DB driven by pgx and exposes the repository
// methods the rest of the module depends on through narrow collaborator
// interfaces (blueprint.Store, pipeline.Store, queue.Store).
type Client struct {
	db *stdsql.DB
}

// DB returns the underlying connection pool, for health checks.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClientFromDB wraps an already-open *sql.DB, skipping migrations.
// Used by tests that manage migrations themselves.
func NewClientFromDB(db *stdsql.DB) *Client {
	return &Client{db: db}
}

// NewClient opens a pooled connection to cfg and applies all pending
// migrations before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn:= fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err:= stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err:= db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err:= RunMigrations(db, cfg.Database, ""); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{db: db}, nil
}

// RunMigrations applies every pending migration embedded under
// pkg/database/migrations using golang-migrate, the same
// embed-then-apply-on-startup workflow the rest of this stack's services
// use ("the binary carries its own schema"). schemaName scopes
// the migration (and its schema_migrations tracking table) to a single
// PostgreSQL schema; pass "" to use the connection's default search_path,
// which is what NewClient does in production. Test helpers that isolate
// each test in its own schema (test/util.SetupTestDatabase) pass the
// per-test schema name explicitly.
func RunMigrations(db *stdsql.DB, databaseName, schemaName string) error {
	driver, err:= postgres.WithInstance(db, &postgres.Config{SchemaName: schemaName})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}

	sourceDriver, err:= iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err:= migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err:= m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the migration source; closing m would also close db via
	// the shared driver, which must stay open for the Client's lifetime.
	return sourceDriver.Close()
}
