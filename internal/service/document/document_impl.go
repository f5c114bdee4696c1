package document

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/cache"
	"github.com/docuchat/docuchat/internal/history"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/registry"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage"
)

type DocumentService struct {
	files    *registry.FileMap
	states   StateStore
	storage  storage.Storage
	queue    queue.Queue
	pipeline IndexBuilder
	vectors  vectorstore.Index
	cache    *cache.Cache
	history  history.Store
	logger   logger.Logger
}

func NewService(
	files *registry.FileMap,
	states StateStore,
	store storage.Storage,
	q queue.Queue,
	pipeline IndexBuilder,
	vectors vectorstore.Index,
	chainCache *cache.Cache,
	hist history.Store,
	log logger.Logger,
) Service {
	return &DocumentService{
		files:    files,
		states:   states,
		storage:  store,
		queue:    q,
		pipeline: pipeline,
		vectors:  vectors,
		cache:    chainCache,
		history:  hist,
		logger:   log,
	}
}

// Upload stores the blob under "<id>_<filename>" and registers the id.
func (s *DocumentService) Upload(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	id := uuid.New().String()
	key := fmt.Sprintf("%s_%s", id, filename)

	if _, err := s.storage.Store(ctx, reader, key); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := s.files.Register(id, key, filename); err != nil {
		// The blob is orphaned if registration fails; remove it so a
		// retry of the upload starts clean.
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Error("Failed to remove orphaned blob",
				logger.String("key", key),
				logger.Error(delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Document uploaded",
		logger.String("documentId", id),
		logger.String("filename", filename),
	)

	return &models.Document{
		ID:          id,
		StoragePath: key,
		Filename:    filename,
		CreatedAt:   time.Now().UTC(),
		State:       models.StateUnindexed,
	}, nil
}

// Activate enqueues an indexing job for the document. Concurrent
// activations race on an atomic claim; exactly one caller submits and
// the losers observe the winning task.
func (s *DocumentService) Activate(ctx context.Context, documentID string) (*models.IndexTask, error) {
	entry, err := s.files.Resolve(ctx, documentID)
	if err != nil {
		return nil, err
	}

	taskID := uuid.New().String()
	claim, err := s.states.Claim(ctx, documentID, taskID)
	if err != nil {
		return nil, err
	}

	if !claim.Claimed {
		if claim.State == models.StateReady {
			// Nothing to do: report success without touching the queue.
			task := &models.IndexTask{
				TaskID:     taskID,
				DocumentID: documentID,
				Status:     models.TaskSuccess,
				CreatedAt:  time.Now().UTC(),
				FinishedAt: time.Now().UTC(),
			}
			if err := s.queue.SaveFinalStatus(ctx, task); err != nil {
				return nil, err
			}
			return task, nil
		}

		// queued or indexing: a submission already covers this document.
		if claim.TaskID != "" {
			if task, err := s.queue.Status(ctx, claim.TaskID); err == nil {
				return task, nil
			}
			// The winner claimed but its broker record is not visible
			// yet. Reporting the covering task as pending is safe;
			// racing a second submission is not.
			return &models.IndexTask{
				TaskID:     claim.TaskID,
				DocumentID: documentID,
				Status:     models.TaskPending,
				CreatedAt:  time.Now().UTC(),
			}, nil
		}

		// A queued state without a covering task is left over from an
		// older record. Take the claim over and resubmit.
		if err := s.states.Force(ctx, documentID, models.StateQueued); err != nil {
			return nil, err
		}
		if err := s.states.SetTaskID(ctx, documentID, taskID); err != nil {
			return nil, err
		}
	}

	payload := queue.IndexPayload{
		TaskID:     taskID,
		DocumentID: documentID,
		BlobKey:    entry.Key,
	}
	if err := s.queue.Submit(ctx, payload); err != nil {
		// Release the claim so a later activation can retry.
		if rmErr := s.states.Remove(ctx, documentID); rmErr != nil {
			s.logger.Error("Failed to release indexing claim",
				logger.String("documentId", documentID),
				logger.Error(rmErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Indexing task submitted",
		logger.String("documentId", documentID),
		logger.String("taskId", taskID),
	)

	return &models.IndexTask{
		TaskID:     taskID,
		DocumentID: documentID,
		Status:     models.TaskPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// TaskStatus returns the state of an indexing task.
func (s *DocumentService) TaskStatus(ctx context.Context, taskID string) (*models.IndexTask, error) {
	return s.queue.Status(ctx, taskID)
}

// Document assembles the durable record with its current state.
func (s *DocumentService) Document(ctx context.Context, documentID string) (*models.Document, error) {
	entry, ok := s.files.Lookup(documentID)
	if !ok {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, documentID)
	}
	state, err := s.states.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &models.Document{
		ID:          entry.ID,
		StoragePath: entry.Key,
		Filename:    entry.Filename,
		CreatedAt:   entry.CreatedAt,
		State:       state,
	}, nil
}

// List returns every known document with its current state.
func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	entries := s.files.List()
	docs := make([]models.Document, 0, len(entries))
	for _, entry := range entries {
		state, err := s.states.Get(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, models.Document{
			ID:          entry.ID,
			StoragePath: entry.Key,
			Filename:    entry.Filename,
			CreatedAt:   entry.CreatedAt,
			State:       state,
		})
	}
	return docs, nil
}

// HandleIndexTask runs one indexing job. The failure path records task
// FAILURE and document FAILED instead of crashing the worker.
func (s *DocumentService) HandleIndexTask(ctx context.Context, payload queue.IndexPayload) error {
	if err := s.states.Transition(ctx, payload.DocumentID, models.StateIndexing); err != nil {
		// Re-delivery after a crash can leave the state off-script.
		s.logger.Warn("Unexpected state at indexing start",
			logger.String("documentId", payload.DocumentID),
			logger.Error(err),
		)
		if err := s.states.Force(ctx, payload.DocumentID, models.StateIndexing); err != nil {
			return err
		}
	}
	if err := s.queue.SaveFinalStatus(ctx, &models.IndexTask{
		TaskID:     payload.TaskID,
		DocumentID: payload.DocumentID,
		Status:     models.TaskStarted,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to record task start", logger.Error(err))
	}

	buildErr := s.pipeline.Build(ctx, payload.DocumentID, payload.BlobKey)

	final := &models.IndexTask{
		TaskID:     payload.TaskID,
		DocumentID: payload.DocumentID,
		FinishedAt: time.Now().UTC(),
	}
	nextState := models.StateReady
	if buildErr != nil {
		final.Status = models.TaskFailure
		final.Error = buildErr.Error()
		nextState = models.StateFailed
		s.logger.Error("Indexing failed",
			logger.String("documentId", payload.DocumentID),
			logger.String("taskId", payload.TaskID),
			logger.Error(buildErr),
		)
	} else {
		final.Status = models.TaskSuccess
		s.logger.Info("Indexing completed",
			logger.String("documentId", payload.DocumentID),
			logger.String("taskId", payload.TaskID),
		)
	}

	if err := s.states.Transition(ctx, payload.DocumentID, nextState); err != nil {
		if err := s.states.Force(ctx, payload.DocumentID, nextState); err != nil {
			s.logger.Error("Failed to record indexing state", logger.Error(err))
		}
	}
	if err := s.queue.SaveFinalStatus(ctx, final); err != nil {
		s.logger.Error("Failed to record final task status", logger.Error(err))
	}

	return buildErr
}

// Delete removes one document's state: blob first, then cache entry,
// then vector namespace, then history and indexing state. A failure
// aborts the remaining steps but never rolls back completed ones; a
// repeated call converges on fully deleted.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	entry, ok := s.files.Lookup(documentID)
	if !ok {
		// Unknown id: deletion already converged.
		return nil
	}

	if err := s.storage.Delete(ctx, entry.Key); err != nil {
		return fmt.Errorf("failed to delete blob for %s: %w", documentID, err)
	}
	if err := s.files.Forget(documentID); err != nil {
		return err
	}

	s.cache.Invalidate(documentID)

	if err := s.vectors.DeleteNamespace(ctx, models.Namespace(documentID)); err != nil {
		return fmt.Errorf("failed to delete namespace for %s: %w", documentID, err)
	}
	if err := s.history.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := s.states.Remove(ctx, documentID); err != nil {
		return err
	}

	s.logger.Info("Document deleted", logger.String("documentId", documentID))
	return nil
}

// Flush tears down every document, the whole cache, the vector index and
// all chat history. Safe to call with nothing stored.
func (s *DocumentService) Flush(ctx context.Context) error {
	var firstErr error

	for _, entry := range s.files.List() {
		if err := s.states.Remove(ctx, entry.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.cache.Clear()

	if err := s.storage.Wipe(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.files.Clear(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.vectors.Reset(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.history.FlushAll(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return fmt.Errorf("flush incomplete: %w", firstErr)
	}
	s.logger.Info("All document state flushed")
	return nil
}
