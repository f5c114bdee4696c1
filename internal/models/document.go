package models

import (
	"fmt"
	"time"
)

// IndexingState tracks a document through the indexing pipeline.
type IndexingState string

const (
	StateUnindexed IndexingState = "unindexed"
	StateQueued    IndexingState = "queued"
	StateIndexing  IndexingState = "indexing"
	StateReady     IndexingState = "ready"
	StateFailed    IndexingState = "failed"
)

// CanTransition reports whether moving from s to next is a legal state
// change. Transitions are monotonic except failed -> queued (retry);
// ready is terminal until teardown removes the document entirely.
func (s IndexingState) CanTransition(next IndexingState) bool {
	switch s {
	case StateUnindexed:
		return next == StateQueued
	case StateQueued:
		return next == StateIndexing || next == StateFailed
	case StateIndexing:
		return next == StateReady || next == StateFailed
	case StateFailed:
		return next == StateQueued
	case StateReady:
		return false
	}
	return false
}

// Document is the durable record created at upload time. ID is generated
// once and is the join key across the registry, the vector index namespace,
// the task queue and the chat history.
type Document struct {
	ID          string        `json:"id"`
	StoragePath string        `json:"storagePath"`
	Filename    string        `json:"filename"`
	CreatedAt   time.Time     `json:"createdAt"`
	State       IndexingState `json:"indexingState"`
}

// Namespace derives the vector index namespace for a document id. It is a
// function of the immutable id only, never of the user supplied filename.
func Namespace(documentID string) string {
	return fmt.Sprintf("doc_%s", documentID)
}

// TaskStatus is the lifecycle of a dispatched indexing job.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskStarted TaskStatus = "started"
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// IndexTask is the queryable record of one indexing job.
type IndexTask struct {
	TaskID     string     `json:"taskId"`
	DocumentID string     `json:"documentId"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt time.Time  `json:"finishedAt,omitempty"`
}

// ChatTurn is one message in a session's ordered history.
type ChatTurn struct {
	Role string `json:"role"` // human | assistant
	Text string `json:"text"`
}

// Passage is one embedded chunk of a document.
type Passage struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score,omitempty"`
}
