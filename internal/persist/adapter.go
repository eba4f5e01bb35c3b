// Package persist stores the encoded goal envelope under a single key in a
// durable backend. The bytes are opaque at this layer.
package persist

import (
	"context"
	"errors"
	"fmt"
)

// DefaultKey is the storage key the goal envelope is written under.
const DefaultKey = "goals-storage"

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var (
	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrClosed is returned by operations on a closed adapter.
	ErrClosed = errors.New("storage adapter closed")
)

// Adapter is a key/value byte store holding one persisted envelope.
// Save replaces the stored value atomically; Load returns nil, nil when
// nothing has been saved.
type Adapter interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the file path for the file backend and the database path for sqlite.
	Path string
	// DSN is the postgres connection string.
	DSN string
	// Key is the storage key; DefaultKey when empty.
	Key string
}

// Open constructs the adapter named by opts.Backend.
func Open(ctx context.Context, opts Options) (Adapter, error) {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}

	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.Path)
	case BackendSQLite:
		return NewSQLite(opts.Path, key)
	case BackendPostgres:
		return NewPostgres(ctx, opts.DSN, key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
