package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/storage/local"
	"github.com/docuchat/docuchat/pkg/storage/minio"
	"github.com/docuchat/docuchat/pkg/storage/s3"
)

// Storage persists uploaded document blobs. Keys are opaque to the
// backend; the registry owns the id -> key mapping.
type Storage interface {
	// Store writes the blob under key and returns the stored key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the blob for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the blob is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Wipe removes every stored blob.
	Wipe(ctx context.Context) error
}

// NewStorage creates the configured storage backend.
func NewStorage(cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	switch cfg.Backend {
	case "local", "":
		return local.NewStorage(cfg.LocalDir, log)
	case "minio":
		return minio.NewStorage(cfg, log)
	case "s3":
		return s3.NewStorage(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
