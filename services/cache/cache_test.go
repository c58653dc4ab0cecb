package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingBackend fails every operation
type failingBackend struct {
	err     error
	deletes int
}

func (f *failingBackend) Load(context.Context, string) (*Entry, error) { return nil, f.err }
func (f *failingBackend) Save(context.Context, *Entry) error          { return f.err }
func (f *failingBackend) Delete(context.Context, string) error {
	f.deletes++
	return f.err
}
func (f *failingBackend) Clear(context.Context) error { return f.err }
func (f *failingBackend) Name() string                { return "failing" }

var enabled = Policy{Enabled: true, TTL: time.Hour}

func TestStore_PutAndGet(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(NewMemoryBackend(0), zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	_, ok := store.Get(ctx, "k1", enabled)
	assert.False(t, ok)

	store.Put(ctx, "k1", json.RawMessage(`{"advice":"cut spending"}`), enabled)

	entry, ok := store.Get(ctx, "k1", enabled)
	require.True(t, ok)
	assert.JSONEq(t, `{"advice":"cut spending"}`, string(entry.Data))
	assert.Equal(t, "k1", entry.Key)
	assert.True(t, entry.Timestamp.Equal(clock.Now()))

	stats := store.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestStore_Expiry(t *testing.T) {
	clock := newFakeClock()
	backend := NewMemoryBackend(0)
	store := NewStore(backend, nil, WithClock(clock.Now))
	ctx := context.Background()
	policy := Policy{Enabled: true, TTL: time.Minute}

	store.Put(ctx, "k", json.RawMessage(`1`), policy)

	clock.Advance(time.Minute)
	_, ok := store.Get(ctx, "k", policy)
	assert.True(t, ok, "an entry exactly TTL old is still fresh")

	clock.Advance(time.Second)
	_, ok = store.Get(ctx, "k", policy)
	assert.False(t, ok)
	assert.Zero(t, backend.Len(), "expired entry is removed on access")
}

func TestStore_Disabled(t *testing.T) {
	backend := NewMemoryBackend(0)
	store := NewStore(backend, nil)
	ctx := context.Background()
	disabled := Policy{Enabled: false, TTL: time.Hour}

	store.Put(ctx, "k", json.RawMessage(`1`), disabled)
	assert.Zero(t, backend.Len())

	store.Put(ctx, "k", json.RawMessage(`1`), enabled)
	_, ok := store.Get(ctx, "k", disabled)
	assert.False(t, ok)
	assert.Zero(t, store.Stats().Misses, "disabled lookups are not counted")
}

func TestStore_SwallowsBackendErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	backend := &failingBackend{err: errors.New("disk full")}
	store := NewStore(backend, zap.New(core))
	ctx := context.Background()

	store.Put(ctx, "k", json.RawMessage(`1`), enabled)
	_, ok := store.Get(ctx, "k", enabled)

	assert.False(t, ok)
	stats := store.Stats()
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Zero(t, stats.Writes)
	assert.Equal(t, 1, logs.FilterMessage("cache write failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("cache read failed").Len())

	assert.Error(t, store.Clear(ctx), "clear is an explicit admin action and reports failures")
}

func TestStore_ExpiredDeleteFailureIsStillAMiss(t *testing.T) {
	clock := newFakeClock()
	mem := NewMemoryBackend(0)
	store := NewStore(mem, nil, WithClock(clock.Now))
	ctx := context.Background()
	store.Put(ctx, "k", json.RawMessage(`1`), enabled)

	broken := &deleteFailing{MemoryBackend: mem}
	store.backend = broken
	clock.Advance(2 * time.Hour)

	_, ok := store.Get(ctx, "k", enabled)
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.Stats().Errors)
}

type deleteFailing struct {
	*MemoryBackend
}

func (d *deleteFailing) Delete(context.Context, string) error { return errors.New("locked") }

func TestStore_ConcurrentSameKey(t *testing.T) {
	store := NewStore(NewMemoryBackend(0), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Put(ctx, "same", json.RawMessage(`{"v":1}`), enabled)
			store.Get(ctx, "same", enabled)
		}()
	}
	wg.Wait()

	entry, ok := store.Get(ctx, "same", enabled)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(entry.Data))
}

func TestStore_Close(t *testing.T) {
	assert.NoError(t, NewStore(NewMemoryBackend(0), nil).Close())
}

// exerciseBackend runs the behaviour every backend must share
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

	_, err := b.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Save(ctx, &Entry{Key: "abc123", Data: json.RawMessage(`{"advice":"save"}`), Timestamp: ts}))

	got, err := b.Load(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Key)
	assert.JSONEq(t, `{"advice":"save"}`, string(got.Data))
	assert.True(t, ts.Equal(got.Timestamp), "timestamp round trip: %v", got.Timestamp)

	later := ts.Add(time.Minute)
	require.NoError(t, b.Save(ctx, &Entry{Key: "abc123", Data: json.RawMessage(`"second"`), Timestamp: later}))
	got, err = b.Load(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, `"second"`, string(got.Data), "last writer wins")
	assert.True(t, later.Equal(got.Timestamp))

	require.NoError(t, b.Delete(ctx, "abc123"))
	_, err = b.Load(ctx, "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, b.Delete(ctx, "abc123"), "deleting a missing key is not an error")

	for _, k := range []string{"k1", "k2", "k3"} {
		require.NoError(t, b.Save(ctx, &Entry{Key: k, Data: json.RawMessage(`1`), Timestamp: ts}))
	}
	require.NoError(t, b.Clear(ctx))
	for _, k := range []string{"k1", "k2", "k3"} {
		_, err = b.Load(ctx, k)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend(0))
}

func TestMemoryBackend_EvictsLRU(t *testing.T) {
	b := NewMemoryBackend(2)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, b.Save(ctx, &Entry{Key: "a", Data: json.RawMessage(`1`), Timestamp: now}))
	require.NoError(t, b.Save(ctx, &Entry{Key: "b", Data: json.RawMessage(`2`), Timestamp: now}))

	// touch a so b becomes least recently used
	_, err := b.Load(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, b.Save(ctx, &Entry{Key: "c", Data: json.RawMessage(`3`), Timestamp: now}))

	assert.Equal(t, 2, b.Len())
	_, err = b.Load(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Load(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	b := NewMemoryBackend(0)
	ctx := context.Background()
	data := json.RawMessage(`{"a":1}`)
	require.NoError(t, b.Save(ctx, &Entry{Key: "k", Data: data, Timestamp: time.Now()}))

	data[2] = 'X'
	got, err := b.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got.Data))
}
