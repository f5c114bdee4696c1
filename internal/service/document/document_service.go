package document

import (
	"context"
	"io"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/registry"
	"github.com/docuchat/docuchat/pkg/queue"
)

// StateStore is the slice of the registry the service needs to track a
// document's indexing lifecycle.
type StateStore interface {
	Get(ctx context.Context, documentID string) (models.IndexingState, error)
	// Claim atomically moves an unindexed or failed document to queued;
	// at most one concurrent claim wins.
	Claim(ctx context.Context, documentID, taskID string) (registry.ClaimResult, error)
	Transition(ctx context.Context, documentID string, next models.IndexingState) error
	Force(ctx context.Context, documentID string, state models.IndexingState) error
	SetTaskID(ctx context.Context, documentID, taskID string) error
	Remove(ctx context.Context, documentID string) error
}

// IndexBuilder runs the ingest for one document.
type IndexBuilder interface {
	Build(ctx context.Context, documentID, blobKey string) error
}

// Service owns the document lifecycle: upload, activation, indexing,
// teardown. It is shared by the HTTP server and the indexing worker.
type Service interface {
	// Upload stores the blob, registers the id mapping and returns the
	// new document.
	Upload(ctx context.Context, reader io.Reader, filename string) (*models.Document, error)
	// Activate enqueues indexing for the document and returns the task
	// to poll. Re-activating a ready document is cheap; an in-flight
	// task is returned instead of a duplicate submission.
	Activate(ctx context.Context, documentID string) (*models.IndexTask, error)
	// TaskStatus returns the state of an indexing task.
	TaskStatus(ctx context.Context, taskID string) (*models.IndexTask, error)
	// Document returns one document with its current indexing state.
	Document(ctx context.Context, documentID string) (*models.Document, error)
	// List returns every known document.
	List(ctx context.Context) ([]models.Document, error)
	// HandleIndexTask runs one indexing job on the worker.
	HandleIndexTask(ctx context.Context, payload queue.IndexPayload) error
	// Delete tears down one document across blob storage, cache and the
	// vector index. Best-effort and idempotent.
	Delete(ctx context.Context, documentID string) error
	// Flush tears down every document plus all session history.
	Flush(ctx context.Context) error
}
