// Package postgres implements store.Store backed by PostgreSQL, following
// the teacher's internal/app/storage/postgres layout: one Store type, one
// file per group of related tables, raw database/sql with $N placeholders,
// and JSON-marshaled columns for variable-shape fields.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tascade-run/tascade/internal/store"
)

func jsonUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every method
// below run either standalone or inside the transaction WithLock opens.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an already-open database handle. Callers are responsible for
// connection pool tuning (see internal/config.DatabaseConfig) and for
// calling migrations.Apply before first use. Use internal/platform/database
// to open the handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithLock opens a single *sql.Tx for the duration of fn, giving the
// operation the same all-or-nothing semantics the memory store's mutex
// provides. Every store method in this package pulls the active Tx (if
// any) out of ctx via conn, so nested calls from within an engine
// operation share one transaction.
func (s *Store) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
