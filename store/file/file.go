// Package file stores values as JSON files under a directory. Writes go to a
// temporary file that is renamed into place.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/store"
)

// Config holds configuration for the file store.
type Config struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = "data"
	}
}

// Store implements provider.ContextStore on the local filesystem.
type Store[C any] struct {
	dir string
	now func() time.Time
}

type envelope struct {
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
	Value     json.RawMessage `json:"value"`
}

// NewStore creates the directory if needed.
func NewStore[C any](cfg Config) (*Store[C], error) {
	cfg.ApplyDefaults()
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("file store: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &Store[C]{dir: abs, now: time.Now}, nil
}

func (s *Store[C]) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Load reads the value. Returns (nil, nil) if the file is missing or expired.
func (s *Store[C]) Load(_ context.Context, key string) (*C, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store load %q: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", store.ErrCorrupt, key, err)
	}
	if store.Expired(env.ExpiresAt, s.now()) {
		_ = os.Remove(s.path(key))
		return nil, nil
	}
	return store.Unmarshal[C](key, env.Value)
}

// Save writes the value atomically.
func (s *Store[C]) Save(_ context.Context, key string, val *C, ttl time.Duration) error {
	raw, err := store.Marshal(key, val)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{ExpiresAt: store.Expiry(ttl, s.now()), Value: raw})
	if err != nil {
		return fmt.Errorf("file store marshal %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file store save %q: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store write %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("file store rename %q: %w", key, err)
	}
	return nil
}

// Delete removes the file. A missing file is not an error.
func (s *Store[C]) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file store delete %q: %w", key, err)
	}
	return nil
}

var _ provider.ContextStore[any] = (*Store[any])(nil)
