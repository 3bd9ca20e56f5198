package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	FileBackend = "file"

	lockFileName = ".lock"
	entrySuffix  = ".json"
)

// File stores one JSON document per key under dir. A lock file guards the
// directory across processes and a mutex across goroutines.
type File struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

func NewFile(dir string) (*File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &File{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
		now:  time.Now,
	}, nil
}

func (c *File) Name() string { return FileBackend }

// Dir exposes the cache directory path.
func (c *File) Dir() string { return c.dir }

func (c *File) Save(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(newEntry(key, value, ttl, c.now()))
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	path, err := c.pathFor(key)
	if err != nil {
		return err
	}

	return c.withLock(func() error {
		tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
		if err != nil {
			return fmt.Errorf("create temp entry: %w", err)
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("write cache entry: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("close cache entry: %w", err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("rename cache entry: %w", err)
		}
		return nil
	})
}

func (c *File) Load(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := c.withLock(func() error {
		e, ok, err := c.read(key)
		if err != nil || !ok {
			return err
		}
		value, found = e.Value, true
		return nil
	})
	return value, found, err
}

func (c *File) Delete(_ context.Context, key string) (bool, error) {
	path, err := c.pathFor(key)
	if err != nil {
		return false, err
	}

	var removed bool
	err = c.withLock(func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove cache entry: %w", err)
		}
		removed = true
		return nil
	})
	return removed, err
}

func (c *File) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Load(ctx, key)
	return ok, err
}

// Clear removes every entry but keeps the directory and its lock file.
func (c *File) Clear(context.Context) error {
	return c.withLock(func() error {
		files, err := os.ReadDir(c.dir)
		if err != nil {
			return fmt.Errorf("read cache dir: %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), entrySuffix) {
				continue
			}
			if err := os.Remove(filepath.Join(c.dir, f.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove cache entry: %w", err)
			}
		}
		return nil
	})
}

// read must be called under the lock. Expired entries are removed.
func (c *File) read(key string) (Entry, bool, error) {
	path, err := c.pathFor(key)
	if err != nil {
		return Entry{}, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.Expired(c.now()) {
		_ = os.Remove(path)
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *File) withLock(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache dir: %w", err)
	}
	defer c.lock.Unlock()

	return fn()
}

// pathFor keeps every entry directly inside dir.
func (c *File) pathFor(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.ContainsAny(key, `/\`) || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(c.dir, key+entrySuffix), nil
}
