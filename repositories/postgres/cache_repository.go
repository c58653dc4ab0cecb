package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/finance-advisor/services/cache"
	"go.uber.org/zap"
)

// CacheRepository stores response cache entries in PostgreSQL
type CacheRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *DB, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{
		db:     db,
		logger: logger,
	}
}

// Name returns the backend name
func (r *CacheRepository) Name() string {
	return "postgres"
}

// Load retrieves an entry by key
func (r *CacheRepository) Load(ctx context.Context, key string) (*cache.Entry, error) {
	query := `
		SELECT cache_key, data, created_at
		FROM response_cache
		WHERE cache_key = $1
	`

	entry := &cache.Entry{}
	var data []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&entry.Key, &data, &entry.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry.Data = data
	return entry, nil
}

// Save upserts an entry
func (r *CacheRepository) Save(ctx context.Context, entry *cache.Entry) error {
	query := `
		INSERT INTO response_cache (cache_key, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
		SET data = EXCLUDED.data, created_at = EXCLUDED.created_at
	`

	if _, err := r.db.ExecContext(ctx, query, entry.Key, []byte(entry.Data), entry.Timestamp); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	r.logger.Debug("cache entry saved", zap.String("key", entry.Key))
	return nil
}

// Delete removes an entry by key
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM response_cache WHERE cache_key = $1`

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Clear removes all entries
func (r *CacheRepository) Clear(ctx context.Context) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	rows, _ := result.RowsAffected()
	r.logger.Info("cache table cleared", zap.Int64("rows", rows))
	return nil
}

// Close closes the underlying pool
func (r *CacheRepository) Close() error {
	return r.db.Close()
}
