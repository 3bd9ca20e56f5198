package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/spigell/resume-analyzer/internal/config"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func backendsUnderTest(t *testing.T, clk *clock) map[string]Store {
	t.Helper()

	mem := NewMemory(10)
	mem.now = clk.now

	file, err := NewFile(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	file.now = clk.now

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.now = clk.now

	return map[string]Store{MemoryBackend: mem, FileBackend: file, SQLiteBackend: db}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	for name, store := range backendsUnderTest(t, clk) {
		t.Run(name, func(t *testing.T) {
			if store.Name() != name {
				t.Fatalf("unexpected name %q", store.Name())
			}

			if _, ok, err := store.Load(ctx, "missing"); ok || err != nil {
				t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
			}

			if err := store.Save(ctx, "k", []byte(`{"report":"a"}`), 0); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Save(ctx, "k", []byte(`{"report":"b"}`), 0); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			value, ok, err := store.Load(ctx, "k")
			if err != nil || !ok || string(value) != `{"report":"b"}` {
				t.Fatalf("expected last write to win, got %s ok=%v err=%v", value, ok, err)
			}

			if exists, _ := store.Exists(ctx, "k"); !exists {
				t.Fatal("expected key to exist")
			}
			if removed, _ := store.Delete(ctx, "k"); !removed {
				t.Fatal("expected delete to report removal")
			}
			if removed, _ := store.Delete(ctx, "k"); removed {
				t.Fatal("expected second delete to report nothing removed")
			}

			_ = store.Save(ctx, "a", []byte(`1`), 0)
			_ = store.Save(ctx, "b", []byte(`2`), 0)
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if exists, _ := store.Exists(ctx, "a"); exists {
				t.Fatal("expected clear to drop entries")
			}
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	t.Parallel()

	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	for name, store := range backendsUnderTest(t, clk) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(ctx, "ttl", []byte(`"v"`), time.Hour); err != nil {
				t.Fatalf("save: %v", err)
			}
			if _, ok, _ := store.Load(ctx, "ttl"); !ok {
				t.Fatal("expected fresh entry to load")
			}

			clk.advance(time.Hour)
			if _, ok, err := store.Load(ctx, "ttl"); ok || err != nil {
				t.Fatalf("expected expired entry to be absent, ok=%v err=%v", ok, err)
			}
			clk.advance(-time.Hour)
			if _, ok, _ := store.Load(ctx, "ttl"); ok {
				t.Fatal("expected expired entry to be evicted on load")
			}
		})
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	t.Parallel()

	clk := &clock{t: time.Unix(0, 0)}
	m := NewMemory(2)
	m.now = clk.now
	ctx := context.Background()

	for _, k := range []string{"first", "second", "third"} {
		_ = m.Save(ctx, k, []byte(`0`), 0)
		clk.advance(time.Second)
	}

	if m.Len() != 2 {
		t.Fatalf("expected bounded size 2, got %d", m.Len())
	}
	if ok, _ := m.Exists(ctx, "first"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if ok, _ := m.Exists(ctx, "third"); !ok {
		t.Fatal("expected newest entry to remain")
	}
}

func TestConcurrentSavesToDistinctKeys(t *testing.T) {
	t.Parallel()

	clk := &clock{t: time.Now()}
	ctx := context.Background()

	for name, store := range backendsUnderTest(t, clk) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = store.Save(ctx, fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("%d", i)), 0)
				}()
			}
			wg.Wait()

			for i := range 8 {
				value, ok, err := store.Load(ctx, fmt.Sprintf("key-%d", i))
				if err != nil || !ok || string(value) != fmt.Sprintf("%d", i) {
					t.Fatalf("key-%d: got %s ok=%v err=%v", i, value, ok, err)
				}
			}
		})
	}
}

func TestFileRejectsKeysOutsideDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := filepath.Join(root, "x.json")
	if err := os.WriteFile(outside, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	file, err := NewFile(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"../x", "..", "", "a/b", `a\b`} {
		if deleted, err := file.Delete(ctx, key); !errors.Is(err, ErrInvalidKey) || deleted {
			t.Fatalf("Delete(%q) = %v, %v; want ErrInvalidKey", key, deleted, err)
		}
		if err := file.Save(ctx, key, []byte(`{}`), 0); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Save(%q) = %v; want ErrInvalidKey", key, err)
		}
		if _, _, err := file.Load(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Load(%q) = %v; want ErrInvalidKey", key, err)
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the cache dir should survive: %v", err)
	}

	if err := file.Save(ctx, "__health_check__", []byte(`{}`), 0); err != nil {
		t.Fatalf("plain keys should still work: %v", err)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if Key("resume", "jd", "hrbp") != Key("resume", "jd", "hrbp") {
		t.Fatal("expected identical inputs to yield identical keys")
	}
	if Key("resume", "jd", "hrbp") == Key("resume", "jd", "candidate") {
		t.Fatal("expected persona to change the key")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatal("expected part boundaries to matter")
	}
	if Key("a", "b") == Key("b", "a") {
		t.Fatal("expected order to matter")
	}
	if len(Key("x")) != 64 {
		t.Fatalf("expected hex sha256, got %q", Key("x"))
	}
}

func TestNewBackends(t *testing.T) {
	t.Parallel()

	if !slices.Equal(Backends(), []string{FileBackend, MemoryBackend, SQLiteBackend}) {
		t.Fatalf("unexpected backends: %v", Backends())
	}

	store, err := New(config.StorageConfig{Enabled: false, Backend: "file"})
	if store != nil || err != nil {
		t.Fatalf("expected nil store when disabled, got %v %v", store, err)
	}

	store, err = New(config.StorageConfig{Enabled: true, Backend: MemoryBackend})
	if err != nil || store.Name() != MemoryBackend {
		t.Fatalf("unexpected store %v %v", store, err)
	}

	if _, err := New(config.StorageConfig{Enabled: true, Backend: "redis"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
