package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrEmptyKey = errors.New("storage key is empty")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (or empty / "none"): process-local map, nothing survives a restart
//   - "file": JSON Lines journal + periodic snapshot
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is a stored key/value pair.
type Entry struct {
	Key   string
	Value []byte
}

// KV is the persistence API used by app state and the notification store.
// Keys are opaque strings; callers namespace them with "<area>/" prefixes.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}
