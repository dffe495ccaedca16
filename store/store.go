// Package store holds the key schema and JSON codec shared by the snapshot
// backends. Each backend implements provider.ContextStore for any value type:
//
//	file    JSON files under a directory
//	redis   go-redis, one key per user and mode
//	sqlite  modernc.org/sqlite, one row per key
//	s3      aws-sdk-go-v2, one object per key
package store

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// Mode separates the batch collection from the single-item workspace.
type Mode string

const (
	ModeBatch  Mode = "batch"
	ModeSingle Mode = "single"
)

// Drivers accepted by the store.driver setting.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverS3     = "s3"
)

// ErrCorrupt marks a stored value that exists but cannot be decoded.
var ErrCorrupt = stderrors.New("corrupt snapshot")

// Key returns the storage key for a user's snapshot in the given mode.
func Key(userID string, mode Mode) string {
	return userID + ":" + string(mode)
}

// Marshal encodes val for storage.
func Marshal[C any](key string, val *C) ([]byte, error) {
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("marshal %q: %w", key, err)
	}
	return data, nil
}

// Unmarshal decodes a stored value. Decode failures wrap ErrCorrupt.
func Unmarshal[C any](key string, data []byte) (*C, error) {
	var val C
	if err := json.Unmarshal(data, &val); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCorrupt, key, err)
	}
	return &val, nil
}

// Expiry converts a TTL to an absolute deadline; zero means none.
func Expiry(ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Expired reports whether deadline has passed. A zero deadline never expires.
func Expired(deadline, now time.Time) bool {
	return !deadline.IsZero() && now.After(deadline)
}
