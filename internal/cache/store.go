// Package cache memoizes expensive LLM calls behind a small key-value contract.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spigell/resume-analyzer/internal/config"
)

// ErrUnknownBackend is returned by New for an unregistered backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// ErrInvalidKey is returned for keys a backend cannot store safely.
var ErrInvalidKey = errors.New("invalid cache key")

// Store is the contract every backend satisfies. Values are JSON documents.
// Save is an upsert and
// concurrent saves to one key are last-write-wins. Load treats an expired
// entry as absent and removes it.
type Store interface {
	Name() string
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
}

// Entry is the persisted form of a cached value.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func newEntry(key string, value []byte, ttl time.Duration, now time.Time) Entry {
	e := Entry{Key: key, Value: append(json.RawMessage(nil), value...), CreatedAt: now}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.ExpiresAt = &exp
	}
	return e
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Factory builds a backend from storage settings.
type Factory func(cfg config.StorageConfig) (Store, error)

var backends = map[string]Factory{
	MemoryBackend: func(cfg config.StorageConfig) (Store, error) { return NewMemory(cfg.MaxEntries), nil },
	FileBackend:   func(cfg config.StorageConfig) (Store, error) { return NewFile(cfg.Dir) },
	SQLiteBackend: func(cfg config.StorageConfig) (Store, error) { return OpenSQLite(cfg.Path) },
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the configured backend. It returns nil when storage is disabled.
func New(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	f, ok := backends[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	store, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	return store, nil
}
