package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// schema creates the receipts table when it does not exist yet
const schema = `
	CREATE TABLE IF NOT EXISTS receipts (
		hash              TEXT PRIMARY KEY,
		run_id            UUID NOT NULL,
		asset_symbol      TEXT NOT NULL,
		amount            NUMERIC NOT NULL,
		recipient_address TEXT NOT NULL,
		fee_estimate      NUMERIC NOT NULL,
		explorer_url      TEXT NOT NULL,
		completed_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS receipts_run_id_idx ON receipts (run_id);
	CREATE INDEX IF NOT EXISTS receipts_completed_at_idx ON receipts (completed_at DESC);
`

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=securesend sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Connect retries NewDB until the database answers or attempts run out
func Connect(ctx context.Context, connectionString string, attempts int, delay time.Duration) (*DB, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := NewDB(connectionString)
		if err == nil {
			return db, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("database unavailable after %d attempts: %w", attempts, lastErr)
}

// EnsureSchema creates the tables used by the repositories
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
