package provider

import (
	"context"
	"time"
)

// ContextStore persists typed per-key state. The key schema belongs to the
// caller. TTL of 0 means no expiration.
type ContextStore[C any] interface {
	// Load retrieves state. Returns (nil, nil) if key doesn't exist.
	Load(ctx context.Context, key string) (*C, error)
	// Save persists state with optional TTL.
	Save(ctx context.Context, key string, val *C, ttl time.Duration) error
	// Delete removes state. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
