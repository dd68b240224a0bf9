// Package store provides the two key-value stores the tracker persists
// into: a local SQLite-backed store and a cross-device remote store (a
// cloud-synced directory or a shared Postgres table).
package store

import (
	"context"
	"errors"
)

// Logical keys. Both stores hold the same layout.
const (
	KeyTrackedApps = "tracked_apps"
	KeyCountry     = "country"
	KeyLastSync    = "last_sync"
)

var (
	// ErrNoData means the key has never been written.
	ErrNoData = errors.New("no data for key")
	// ErrCapacity means the store's quota would be exceeded by a write.
	// It is surfaced distinctly from ordinary store failures.
	ErrCapacity = errors.New("store capacity exceeded")
)

// KV is a minimal key-value store holding serialized snapshots.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Watcher is implemented by remote stores that can report external changes.
type Watcher interface {
	// Changes returns a channel that receives a signal whenever another
	// writer modifies the store. The channel is closed when the watcher
	// stops.
	Changes() <-chan struct{}
}
