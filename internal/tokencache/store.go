package tokencache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Store persists a serialized cache. Load returns (nil, nil) when nothing
// has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

// Supported backends.
const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("tokencache: unknown backend")

// Open returns the Store for backend at path. Partition scopes the sqlite
// row (normally the client id); the file backend ignores it.
func Open(ctx context.Context, backend Backend, path, partition string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendFile, "":
		return NewFileStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(ctx, path, partition, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
