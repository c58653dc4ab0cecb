package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(afero.NewMemMapFs(), "/var/cache/advisor")
	require.NoError(t, err)
	assert.Equal(t, "file", b.Name())

	exerciseBackend(t, b)
}

func TestFileBackend_Layout(t *testing.T) {
	fs := afero.NewMemMapFs()
	b, err := NewFileBackend(fs, "/cache")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, &Entry{Key: "deadbeef", Data: json.RawMessage(`{"x":1}`), Timestamp: time.Now()}))

	raw, err := afero.ReadFile(fs, "/cache/deadbeef.json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "data")
	assert.Contains(t, doc, "timestamp")

	infos, err := afero.ReadDir(fs, "/cache")
	require.NoError(t, err)
	assert.Len(t, infos, 1, "temp files are renamed into place")

	require.NoError(t, afero.WriteFile(fs, "/cache/notes.txt", []byte("keep"), 0o644))
	require.NoError(t, b.Clear(ctx))
	exists, err := afero.Exists(fs, "/cache/notes.txt")
	require.NoError(t, err)
	assert.True(t, exists, "clear only removes entry files")
}

func TestFileBackend_RejectsUnsafeKeys(t *testing.T) {
	b, err := NewFileBackend(afero.NewMemMapFs(), "/cache")
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../etc/passwd", "a/b", "", "x.json"} {
		assert.Error(t, b.Save(ctx, &Entry{Key: key, Data: json.RawMessage(`1`)}), key)
		_, err := b.Load(ctx, key)
		assert.Error(t, err, key)
		assert.NotErrorIs(t, err, ErrNotFound, key)
	}
}

func TestFileBackend_CorruptEntryIsAnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	b, err := NewFileBackend(fs, "/cache")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/cache/bad.json", []byte("{not json"), 0o644))

	_, err = b.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	store := NewStore(b, nil)
	_, ok := store.Get(context.Background(), "bad", enabled)
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.Stats().Errors)
}

func TestSQLiteBackend(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "cache_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	assert.Equal(t, "sqlite", b.Name())

	exerciseBackend(t, b)

	ctx := context.Background()
	require.NoError(t, b.Save(ctx, &Entry{Key: "one", Data: json.RawMessage(`1`), Timestamp: time.Now()}))
	count, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteBackend_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, &Entry{Key: "k", Data: json.RawMessage(`{"a":1}`), Timestamp: time.Now()}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, err := second.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Data))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBackend(client, "")
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func TestRedisBackend(t *testing.T) {
	_, b := newTestRedis(t)
	assert.Equal(t, "redis", b.Name())

	exerciseBackend(t, b)
}

func TestRedisBackend_ClearKeepsForeignKeys(t *testing.T) {
	mr, b := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("session:42", "other tenant"))
	for i := 0; i < 250; i++ {
		key := fmt.Sprintf("k%03d", i)
		require.NoError(t, b.Save(ctx, &Entry{Key: key, Data: json.RawMessage(`1`), Timestamp: time.Now()}))
	}

	require.NoError(t, b.Clear(ctx))

	assert.True(t, mr.Exists("session:42"))
	for _, k := range mr.Keys() {
		assert.False(t, strings.HasPrefix(k, DefaultRedisPrefix), k)
	}
}

func TestRedisBackend_UnavailableServer(t *testing.T) {
	mr, b := newTestRedis(t)
	mr.Close()

	store := NewStore(b, nil)
	store.Put(context.Background(), "k", json.RawMessage(`1`), enabled)
	_, ok := store.Get(context.Background(), "k", enabled)

	assert.False(t, ok)
	assert.Equal(t, int64(2), store.Stats().Errors)
}
