package cache

import (
	"context"
	"sync"
	"time"
)

const (
	MemoryBackend = "memory"

	defaultMaxEntries = 1000
)

// Memory is a process-local bounded store. When full, the oldest entry by
// creation time is evicted.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]Entry
	maxEntries int
	now        func() time.Time
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Memory{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Name() string { return MemoryBackend }

func (m *Memory) Save(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictOldest()
	}
	m.entries[key] = newEntry(key, value, ttl, m.now())
	return nil
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.Value...), true, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// live must be called with mu held.
func (m *Memory) live(key string) (Entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.Expired(m.now()) {
		delete(m.entries, key)
		return Entry{}, false
	}
	return e, true
}

func (m *Memory) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range m.entries {
		if first || e.CreatedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.CreatedAt, false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}
