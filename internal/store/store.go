// Package store persists small operational state: the Gitea browser
// session and webhook delivery dedup marks. It offers a Redis backend
// for shared deployments and a file backend for single-host use.
package store

import (
	"context"
	"time"
)

// Store is the shared persistence surface.
type Store interface {
	// Put stores value as JSON under key.
	Put(ctx context.Context, key string, value any) error
	// Get loads the JSON value under key into out. The second return is
	// false when the key does not exist.
	Get(ctx context.Context, key string, out any) (bool, error)
	// MarkOnce records key with a TTL and reports whether this call was
	// the first to record it. It backs webhook delivery deduplication.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Close releases backend resources.
	Close() error
}
