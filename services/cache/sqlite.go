package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLiteBackend stores entries in a SQLite database file
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at dbPath
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Name returns the backend name
func (b *SQLiteBackend) Name() string {
	return "sqlite"
}

// Load retrieves an entry
func (b *SQLiteBackend) Load(ctx context.Context, key string) (*Entry, error) {
	var data []byte
	var createdAt int64

	err := b.db.QueryRowContext(ctx,
		`SELECT data, created_at FROM cache_entries WHERE cache_key = ?`, key,
	).Scan(&data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	return &Entry{
		Key:       key,
		Data:      data,
		Timestamp: time.Unix(0, createdAt).UTC(),
	}, nil
}

// Save inserts or replaces an entry
func (b *SQLiteBackend) Save(ctx context.Context, entry *Entry) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_key, data, created_at) VALUES (?, ?, ?)`,
		entry.Key, []byte(entry.Data), entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes an entry
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Clear removes all entries
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Count returns the number of stored entries
func (b *SQLiteBackend) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// Close releases the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
