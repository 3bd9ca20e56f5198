package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const SQLiteBackend = "sqlite"

const schema = `CREATE TABLE IF NOT EXISTS storage_cache (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER
)`

// SQLite keeps entries in a storage_cache table with key, JSON value,
// created_at and expires_at columns (unix milliseconds).
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("cache database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache database dir: %w", err)
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// A single connection keeps pragmas and writes consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Name() string { return SQLiteBackend }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := newEntry(key, value, ttl, s.now())
	var expires sql.NullInt64
	if e.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: e.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO storage_cache (key, value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, string(e.Value), e.CreatedAt.UnixMilli(), expires)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM storage_cache WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select cache entry: %w", err)
	}

	if expires.Valid && s.now().UnixMilli() >= expires.Int64 {
		if _, err := s.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM storage_cache WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cache entry: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Load(ctx, key)
	return ok, err
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM storage_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
