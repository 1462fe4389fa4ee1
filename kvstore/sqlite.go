// Package kvstore persists small plain strings in SQLite: the lightweight
// durable key-value store holding the expiry stamps and the device
// identifier, none of which need the secure store's protection.
package kvstore

import (
	"context"
	"database/sql"

	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

// SQLiteStore implements credential.KeyValueStore over a single kv table.
type SQLiteStore struct {
	db *sql.DB
}

var _ credential.KeyValueStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("[NewSQLiteStore] path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[NewSQLiteStore] opening database")
	}
	// The driver is cgo-free but the database is a single file; one
	// connection avoids SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[NewSQLiteStore] enabling WAL")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[NewSQLiteStore] initializing schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("[Set] key is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrap(err, "[Set] upserting value")
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[Get] querying value")
	}
	return value, true, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrap(err, "[Remove] deleting value")
}
