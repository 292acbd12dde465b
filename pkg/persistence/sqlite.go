package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultSQLiteTable is the table used when SQLiteConfig.Table is empty.
const DefaultSQLiteTable = "relay_kv"

// SQLiteConfig configures an SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file path, or ":memory:".
	Path string

	// Table is the key/value table name.
	Table string
}

// SQLiteStore keeps encoded values in an SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// OpenSQLiteStore opens the database and creates the table if needed.
func OpenSQLiteStore(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultSQLiteTable
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: cfg.Table}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %q (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at INTEGER NOT NULL
);`, s.table)
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetItem implements Storage.
func (s *SQLiteStore) GetItem(ctx context.Context, key string, dst any) (bool, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, s.table), key)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, Unmarshal(data, dst)
}

// SetItem implements Storage.
func (s *SQLiteStore) SetItem(ctx context.Context, key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %q (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.table),
		key, data, time.Now().UnixMilli())
	return err
}

// RemoveItem implements Storage.
func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, s.table), key)
	return err
}

// Close implements Storage.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Compile-time interface satisfaction check.
var _ Storage = (*SQLiteStore)(nil)
