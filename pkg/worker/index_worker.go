package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
)

// IndexHandler runs one indexing job. Failures are captured into the
// task's status by the handler; a returned error only marks the broker
// record.
type IndexHandler interface {
	HandleIndexTask(ctx context.Context, payload queue.IndexPayload) error
}

// IndexWorker consumes document indexing jobs from the queue.
type IndexWorker struct {
	BaseWorker
	handler IndexHandler
}

func NewIndexWorker(cfg *Config, handler IndexHandler, log logger.Logger) (*IndexWorker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
		},
	)

	w := &IndexWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		handler: handler,
	}

	w.mux.HandleFunc(queue.TaskTypeDocumentIndex, w.handleIndex)
	return w, nil
}

func (w *IndexWorker) handleIndex(ctx context.Context, t *asynq.Task) error {
	var payload queue.IndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("Failed to unmarshal task payload",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	if payload.TaskID == "" || payload.DocumentID == "" {
		return fmt.Errorf("invalid task payload: missing required fields")
	}

	w.logger.Info("Processing indexing task",
		logger.String("taskId", payload.TaskID),
		logger.String("documentId", payload.DocumentID),
	)

	return w.handler.HandleIndexTask(ctx, payload)
}

func (w *IndexWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
