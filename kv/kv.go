// Package kv defines the key-value primitives the game state is stored on.
//
// Plain keys hold whole records (last write wins). Hash keys hold
// independently addressable fields that support atomic increments, which
// is where every cumulative counter lives.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)

	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field, value string) error
	// HIncrBy atomically adds delta to an integer field, creating it at 0.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	Close() error
}
