package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/internal/models"
)

// TaskTypeDocumentIndex is the asynq task type for indexing jobs.
const TaskTypeDocumentIndex = "document:index"

// statusRetention bounds how long a finished task stays queryable.
const statusRetention = 24 * time.Hour

// IndexPayload is the JSON body of an indexing task.
type IndexPayload struct {
	TaskID     string `json:"taskId"`
	DocumentID string `json:"documentId"`
	BlobKey    string `json:"blobKey"`
}

// Queue dispatches indexing jobs to the worker pool and answers status
// polls. Any at-least-once job backend with queryable status satisfies it.
type Queue interface {
	Submit(ctx context.Context, payload IndexPayload) error
	Status(ctx context.Context, taskID string) (*models.IndexTask, error)
	SaveFinalStatus(ctx context.Context, task *models.IndexTask) error
	Ping(ctx context.Context) error
	Close() error
}

// AsynqQueue implements Queue on asynq with Redis as the broker. Final
// statuses are persisted to Redis with a retention TTL so they outlive
// the broker's own task records.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
}

// Config defines queue configuration
type Config struct {
	RedisAddr string
	RedisDB   int
}

func NewAsynqQueue(cfg *Config) (*AsynqQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis: redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
	}, nil
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

// Submit enqueues an indexing job under payload.TaskID. Indexing failures
// are surfaced through task status, not retried automatically: repeated
// embedding calls are billable.
func (q *AsynqQueue) Submit(ctx context.Context, payload IndexPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeDocumentIndex, data,
		asynq.TaskID(payload.TaskID),
		asynq.Queue("default"),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(statusRetention),
	)
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	initial := &models.IndexTask{
		TaskID:     payload.TaskID,
		DocumentID: payload.DocumentID,
		Status:     models.TaskPending,
		CreatedAt:  time.Now().UTC(),
	}
	return q.SaveFinalStatus(ctx, initial)
}

// Status returns the task record, preferring the persisted status over
// the broker's view. An unknown or expired id yields ErrNotFound, never
// a fabricated status.
func (q *AsynqQueue) Status(ctx context.Context, taskID string) (*models.IndexTask, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read task status: %w", err)
	}

	var saved *models.IndexTask
	if err == nil {
		saved = &models.IndexTask{}
		if err := json.Unmarshal(data, saved); err != nil {
			return nil, fmt.Errorf("failed to parse task status: %w", err)
		}
		if saved.Status == models.TaskSuccess || saved.Status == models.TaskFailure {
			return saved, nil
		}
	}

	info, err := q.inspector.GetTaskInfo("default", taskID)
	if err != nil {
		if saved != nil {
			// The broker already dropped the record; the persisted
			// non-final status is the best answer we have.
			return saved, nil
		}
		return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
	}

	task := convertTaskInfo(info)
	if saved != nil {
		task.DocumentID = saved.DocumentID
		task.CreatedAt = saved.CreatedAt
	}
	return task, nil
}

// SaveFinalStatus persists a task status snapshot with the retention TTL.
func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, task *models.IndexTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(task.TaskID), data, statusRetention).Err(); err != nil {
		return fmt.Errorf("failed to save task status: %w", err)
	}
	return nil
}

// Ping checks broker reachability.
func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

// Close releases the queue's connections.
func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.redis.Close()
}

// convertTaskInfo maps the broker's task state onto the index task
// lifecycle.
func convertTaskInfo(info *asynq.TaskInfo) *models.IndexTask {
	task := &models.IndexTask{TaskID: info.ID}

	switch info.State {
	case asynq.TaskStateActive:
		task.Status = models.TaskStarted
	case asynq.TaskStateCompleted:
		task.Status = models.TaskSuccess
		task.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		task.Status = models.TaskFailure
		task.Error = info.LastErr
	default:
		// pending, scheduled, aggregating
		task.Status = models.TaskPending
	}
	return task
}
