package vectorstore

import (
	"context"

	"github.com/docuchat/docuchat/internal/models"
)

// Index is the external vector engine. Namespaces are its logical
// partitions; one namespace holds one document's embedded passages.
type Index interface {
	// CreateNamespace persists passages and their vectors under name,
	// recording the vector dimension so the namespace can be attached
	// later without re-embedding.
	CreateNamespace(ctx context.Context, name string, dim int, passages []models.Passage, vectors [][]float32) error
	// NamespaceExists reports whether name is already populated.
	NamespaceExists(ctx context.Context, name string) (bool, error)
	// Dimension returns the stored vector dimension of the namespace.
	Dimension(ctx context.Context, name string) (int, error)
	// Attach returns a search handle over an existing namespace. The
	// handle is read-only and safe for concurrent use.
	Attach(name string) Searcher
	// DeleteNamespace drops the namespace. Unknown names are a no-op.
	DeleteNamespace(ctx context.Context, name string) error
	// Reset drops every document namespace.
	Reset(ctx context.Context) error
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}

// Searcher performs similarity search inside one namespace.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]models.Passage, error)
}
