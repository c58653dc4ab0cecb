package cache

import (
	"container/list"
	"context"
	"sync"
)

// MemoryBackend is an in-process LRU-bounded backend
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lruList    *list.List
	maxEntries int
}

// NewMemoryBackend creates a memory backend holding at most maxEntries
// entries (0 means unbounded)
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	return &MemoryBackend{
		entries:    make(map[string]*list.Element),
		lruList:    list.New(),
		maxEntries: maxEntries,
	}
}

// Name returns the backend name
func (m *MemoryBackend) Name() string {
	return "memory"
}

// Load returns a copy of the entry
func (m *MemoryBackend) Load(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	m.lruList.MoveToFront(el)
	return cloneEntry(el.Value.(*Entry)), nil
}

// Save inserts or replaces the entry, evicting the least recently used one when full
func (m *MemoryBackend) Save(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneEntry(entry)
	if el, ok := m.entries[entry.Key]; ok {
		el.Value = stored
		m.lruList.MoveToFront(el)
		return nil
	}

	if m.maxEntries > 0 && m.lruList.Len() >= m.maxEntries {
		m.evictLRU()
	}
	m.entries[entry.Key] = m.lruList.PushFront(stored)
	return nil
}

// Delete removes the entry if present
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.lruList.Remove(el)
		delete(m.entries, key)
	}
	return nil
}

// Clear removes all entries
func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.lruList.Init()
	return nil
}

// Len returns the number of stored entries
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lruList.Len()
}

// evictLRU removes the least recently used entry (must be called with lock held)
func (m *MemoryBackend) evictLRU() {
	el := m.lruList.Back()
	if el == nil {
		return
	}
	m.lruList.Remove(el)
	delete(m.entries, el.Value.(*Entry).Key)
}

func cloneEntry(e *Entry) *Entry {
	out := *e
	out.Data = append([]byte(nil), e.Data...)
	return &out
}
