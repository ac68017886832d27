package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/tabletop/internal/apperror"
)

// dbtx is the subset of database/sql used by queries that may run either
// on the pool or inside a transaction. *sql.DB and *sql.Tx both satisfy it.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx begins a transaction, runs fn with it, and commits on success or
// rolls back on error or panic. Panics are rethrown.
//
// The context bounds the whole transaction: if it expires, database/sql
// rolls back and fn's next statement fails.
func (db *DB) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("sqlite: committing transaction: %w", cerr)
		}
	}()

	return fn(tx)
}

// lockRow performs a no-op write on one row. As the first statement of a
// transaction it acquires the database write lock and proves the row exists.
// table and column are compile-time constants, never user input.
func lockRow(ctx context.Context, tx dbtx, table, column string, id int64, resource string) error {
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = %s WHERE id = ?`, table, column, column), id)
	if err != nil {
		return fmt.Errorf("sqlite: locking %s %d: %w", resource, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: locking %s %d: %w", resource, id, err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func lockGame(ctx context.Context, tx dbtx, gameID int64) error {
	return lockRow(ctx, tx, "games", "rating_count", gameID, "game")
}

func lockUser(ctx context.Context, tx dbtx, userID int64) error {
	return lockRow(ctx, tx, "users", "updated_at", userID, "user")
}

func exists(ctx context.Context, q dbtx, query string, args ...any) (bool, error) {
	var found int
	err := q.QueryRowContext(ctx, query, args...).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// encodeStrings stores a string list in a TEXT column as a JSON array.
func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
