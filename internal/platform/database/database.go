package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	core "github.com/tascade-run/tascade/internal/core/service"
)

// pingRetryPolicy tolerates the brief window on process start where
// postgres is still accepting TCP connections but not yet ready to serve
// queries (a common race against a container health check).
var pingRetryPolicy = core.RetryPolicy{
	Attempts:       5,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2,
}

// Open establishes a PostgreSQL connection using the provided DSN and verifies
// connectivity with a ping, retried per pingRetryPolicy. The returned *sql.DB
// must be closed by the caller.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := core.Retry(pingCtx, pingRetryPolicy, func() error { return db.PingContext(pingCtx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
