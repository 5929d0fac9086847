// ABOUTME: SQLite implementation of the persistence slot using modernc.org/sqlite
// ABOUTME: One row per slot name, upserted on every save

package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSlot stores the snapshot in a single-row table keyed by slot name.
type SQLiteSlot struct {
	db   *sql.DB
	name string
}

// NewSQLiteSlot opens (or creates) the database at path and prepares the
// slots table. Parent directories are created if needed.
func NewSQLiteSlot(path, name string) (*SQLiteSlot, error) {
	if name == "" {
		name = DefaultSlotName
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS slots (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	slog.Default().With("component", "persist").Info("sqlite slot initialized",
		"path", path, "slot", name)

	return &SQLiteSlot{db: db, name: name}, nil
}

// Save upserts the slot value.
func (s *SQLiteSlot) Save(ctx context.Context, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.name, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving slot %q: %w", s.name, err)
	}
	return nil
}

// Load returns the slot value, or ErrSlotEmpty if it has never been saved.
func (s *SQLiteSlot) Load(ctx context.Context) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM slots WHERE name = ?`, s.name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("loading slot %q: %w", s.name, err)
	}
	return []byte(value), nil
}

// Close releases the database handle.
func (s *SQLiteSlot) Close() error {
	return s.db.Close()
}
