// Package archive stores backup archives fetched from the backend.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hbk-go/internal/config"
)

// ErrNotFound is returned by Get for an unknown archive name.
var ErrNotFound = errors.New("archive not found")

// Store is a destination for downloaded archives.
type Store interface {
	// Create starts a new archive. Nothing is visible under name until
	// Commit returns nil.
	Create(ctx context.Context, name string) (Writer, error)
	// Get copies a stored archive into w.
	Get(ctx context.Context, name string, w io.Writer) error
	// Location describes where name is (or would be) stored.
	Location(name string) string
}

// Writer receives the archive bytes. Exactly one of Commit or Abort must
// be called.
type Writer interface {
	io.Writer
	Commit() error
	Abort()
}

// NewStoreFromConfig creates the Store selected by cfg.Type.
func NewStoreFromConfig(ctx context.Context, cfg config.DownloadConfig) (Store, error) {
	switch cfg.Type {
	case "filesystem", "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem download store requires dir to be set")
		}
		return NewFileSystemStore(cfg.Dir)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown download store type: %s", cfg.Type)
	}
}
