package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

const sessionSchema = `
	CREATE TABLE IF NOT EXISTS session_slots (
		name VARCHAR PRIMARY KEY,
		value VARCHAR NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
`

// DuckDBStore keeps session slots in a DuckDB file so a login survives
// restarts of the console.
type DuckDBStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewDuckDBStore opens (or creates) the session database at path.
// An empty path opens an in-memory database.
func NewDuckDBStore(ctx context.Context, path string, logger *zap.Logger) (*DuckDBStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	// One writer keeps slot transactions serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	logger.Debug("Session database connected",
		zap.String("dsn", dsn),
		zap.Bool("in_memory", path == ""),
	)

	return &DuckDBStore{db: db, path: dsn, logger: logger}, nil
}

// Get returns the value held in slot.
func (s *DuckDBStore) Get(ctx context.Context, slot string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM session_slots WHERE name = $1", slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read slot '%s': %w", slot, err)
	}
	return value, true, nil
}

// Set writes all values in a single transaction.
func (s *DuckDBStore) Set(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for name, value := range values {
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO session_slots (name, value, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)",
			name, value)
		if err != nil {
			return fmt.Errorf("failed to write slot '%s': %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Clear deletes the named slots in a single transaction.
func (s *DuckDBStore) Clear(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, name := range slots {
		if _, err := tx.ExecContext(ctx, "DELETE FROM session_slots WHERE name = $1", name); err != nil {
			return fmt.Errorf("failed to clear slot '%s': %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session clear: %w", err)
	}
	return nil
}

// Path returns the DSN the store was opened with.
func (s *DuckDBStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
