// Package sqlite stores snapshots in a single-table SQLite database through
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/store"
)

// Config holds configuration for the SQLite store.
type Config struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = filepath.Join("data", "scribe.sqlite")
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
)`

// DB is an open snapshot database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database and its table.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	cfg.ApplyDefaults()
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Ping checks the database connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Store implements provider.ContextStore on a DB.
type Store[C any] struct {
	d *DB
}

// NewStore creates a typed store over d.
func NewStore[C any](d *DB) *Store[C] {
	return &Store[C]{d: d}
}

// Load returns (nil, nil) if the row is missing or expired.
func (s *Store[C]) Load(ctx context.Context, key string) (*C, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.d.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM snapshots WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite store load %q: %w", key, err)
	}
	if expiresAt != 0 && store.Expired(time.Unix(0, expiresAt), s.d.now()) {
		_ = s.Delete(ctx, key)
		return nil, nil
	}
	return store.Unmarshal[C](key, value)
}

// Save upserts the row.
func (s *Store[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := store.Marshal(key, val)
	if err != nil {
		return err
	}
	now := s.d.now()
	var expiresAt int64
	if deadline := store.Expiry(ttl, now); !deadline.IsZero() {
		expiresAt = deadline.UnixNano()
	}
	_, err = s.d.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, data, expiresAt, now.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite store save %q: %w", key, err)
	}
	return nil
}

// Delete removes the row.
func (s *Store[C]) Delete(ctx context.Context, key string) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite store delete %q: %w", key, err)
	}
	return nil
}

var _ provider.ContextStore[any] = (*Store[any])(nil)
