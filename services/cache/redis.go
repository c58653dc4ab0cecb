package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis
const DefaultRedisPrefix = "advisor:cache:"

const scanBatch = 100

// RedisBackend stores each entry as a JSON string value
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps client; keys are stored under prefix
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Name returns the backend name
func (b *RedisBackend) Name() string {
	return "redis"
}

// Load retrieves and decodes an entry
func (b *RedisBackend) Load(ctx context.Context, key string) (*Entry, error) {
	raw, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode redis entry: %w", err)
	}
	entry.Key = key
	return &entry, nil
}

// Save writes the entry without a Redis expiry; the store enforces TTL on read
func (b *RedisBackend) Save(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode redis entry: %w", err)
	}
	if err := b.client.Set(ctx, b.prefix+entry.Key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes an entry
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key under the prefix
func (b *RedisBackend) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close closes the underlying client
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
