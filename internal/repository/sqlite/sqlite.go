// Package sqlite implements the repository interfaces on SQLite.
//
// The driver is modernc.org/sqlite (pure Go, no cgo). Schema changes live in
// the embedded goose migrations under migrations/ and are applied by New.
//
// CONCURRENCY:
// File databases run in WAL mode with a busy timeout, so readers never block
// and writers queue behind each other instead of failing. Every
// read-modify-write transaction starts with a write against the row it is
// about to change (see lockRow), which takes SQLite's write lock before
// anything is read. Two transactions can therefore never both read the same
// aggregate and both write back a stale value.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/sakif/tabletop/internal/repository/sqlite/migrations"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements every repository.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/tabletop.db" → file database (persistent)
//   - ":memory:"         → in-memory database for tests
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == memoryPath {
		// Each pooled connection to ":memory:" would be its own empty database.
		conn.SetMaxOpenConns(1)
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return newDB(conn), nil
}

func newDB(conn *sql.DB) *DB {
	return &DB{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// dataSourceName adds per-connection pragmas. foreign_keys and busy_timeout
// are connection-scoped in SQLite, so they must ride on the DSN to reach
// every connection in the pool.
func dataSourceName(dbPath string) string {
	if dbPath == memoryPath {
		return dbPath
	}
	return "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
}

func migrate(ctx context.Context, conn *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrations.FS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
