// Package cache is a content-addressed, TTL-bound memo of provider results.
//
// The Store never surfaces storage failures to callers: a failed read is a
// miss and a failed write is logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by backends when no entry exists for a key
var ErrNotFound = errors.New("cache entry not found")

// Entry is one persisted result
type Entry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Age returns how old the entry is at now
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Backend persists entries, one record per key
type Backend interface {
	// Load returns ErrNotFound when the key is absent
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Name() string
}

// Policy is the per-call view of the cache settings
type Policy struct {
	Enabled bool
	TTL     time.Duration
}

// Stats reports cache activity since the store was created
type Stats struct {
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Writes  int64   `json:"writes"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// Store applies TTL and error-swallowing semantics on top of a Backend
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
	errs   atomic.Int64
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the time source used for timestamps and expiry
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store over backend
func NewStore(backend Backend, logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With(zap.String("cache_backend", backend.Name())),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for key when caching is enabled and the entry is
// younger than policy.TTL. An expired entry is removed before reporting a miss.
func (s *Store) Get(ctx context.Context, key string, policy Policy) (*Entry, bool) {
	if !policy.Enabled {
		return nil, false
	}

	entry, err := s.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.errs.Add(1)
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.misses.Add(1)
		return nil, false
	}

	if entry.Age(s.now()) > policy.TTL {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.errs.Add(1)
			s.logger.Warn("failed to remove expired cache entry", zap.String("key", key), zap.Error(err))
		}
		s.misses.Add(1)
		s.logger.Debug("cache entry expired", zap.String("key", key), zap.Time("stored_at", entry.Timestamp))
		return nil, false
	}

	s.hits.Add(1)
	s.logger.Debug("cache hit", zap.String("key", key))
	return entry, true
}

// Put stores data under key with the current time. Failures are logged only.
func (s *Store) Put(ctx context.Context, key string, data json.RawMessage, policy Policy) {
	if !policy.Enabled {
		return
	}

	entry := &Entry{
		Key:       key,
		Data:      data,
		Timestamp: s.now().UTC(),
	}
	if err := s.backend.Save(ctx, entry); err != nil {
		s.errs.Add(1)
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.writes.Add(1)
}

// Clear removes every entry. Unlike reads and writes, its error is returned.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("cache cleared")
	return nil
}

// Stats returns a snapshot of the counters
func (s *Store) Stats() Stats {
	st := Stats{
		Backend: s.backend.Name(),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Writes:  s.writes.Load(),
		Errors:  s.errs.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}

// Close releases the backend when it holds resources
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
