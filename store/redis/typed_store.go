package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/scribe/provider"
	"github.com/kbukum/scribe/store"
)

// TypedStore provides JSON-serialized values on Redis.
type TypedStore[C any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore creates a TypedStore. Keys are prefixed with the client's
// configured prefix and a colon.
func NewTypedStore[C any](client *Client) *TypedStore[C] {
	return &TypedStore[C]{client: client, keyPrefix: client.cfg.KeyPrefix}
}

func (s *TypedStore[C]) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load returns (nil, nil) if the key doesn't exist.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.rdb.Get(ctx, s.fullKey(key)).Bytes()
	if err != nil {
		if stderrors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis store load %q: %w", key, err)
	}
	return store.Unmarshal[C](key, raw)
}

// Save stores with TTL. TTL of 0 means no expiration.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := store.Marshal(key, val)
	if err != nil {
		return err
	}
	if err := s.client.rdb.Set(ctx, s.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis store save %q: %w", key, err)
	}
	return nil
}

// Delete removes the key.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("redis store delete %q: %w", key, err)
	}
	return nil
}

var _ provider.ContextStore[any] = (*TypedStore[any])(nil)
