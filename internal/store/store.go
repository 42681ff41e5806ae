// Package store provides the durable key-value backends the job queue
// snapshots its live and dead-letter tables into.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendPebble   = "pebble"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("store: unknown backend")

// Backend is a durable key-value store.
// Get returns (nil, nil) when the key does not exist.
type Backend interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the pebble directory or sqlite file.
	Path string
	// DSN is the postgres connection string or redis URL.
	DSN string
}

// Open creates the backend described by opts.
func Open(opts Options) (Backend, error) {
	switch opts.Backend {
	case "", BackendPebble:
		return NewPebble(opts.Path)
	case BackendSQLite:
		if dir := filepath.Dir(opts.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return NewSQL("sqlite3", opts.Path)
	case BackendPostgres:
		return NewSQL("postgres", opts.DSN)
	case BackendRedis:
		return NewRedis(opts.DSN)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
