package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/internal/models"
)

// StateStore tracks per-document indexing state in Redis so that the
// server and the worker, which run as separate processes, observe the
// same lifecycle. Keys carry no TTL; teardown removes them explicitly.
type StateStore struct {
	client *redis.Client
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

func stateKey(documentID string) string {
	return fmt.Sprintf("doc:%s:state", documentID)
}

// Get returns the current state; unknown documents are unindexed.
func (s *StateStore) Get(ctx context.Context, documentID string) (models.IndexingState, error) {
	val, err := s.client.Get(ctx, stateKey(documentID)).Result()
	if err == redis.Nil {
		return models.StateUnindexed, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read indexing state: %w", err)
	}
	return models.IndexingState(val), nil
}

// Transition moves the document to next, enforcing lifecycle legality.
func (s *StateStore) Transition(ctx context.Context, documentID string, next models.IndexingState) error {
	current, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if !current.CanTransition(next) {
		return fmt.Errorf("illegal state transition for %s: %s -> %s", documentID, current, next)
	}
	if err := s.client.Set(ctx, stateKey(documentID), string(next), 0).Err(); err != nil {
		return fmt.Errorf("failed to store indexing state: %w", err)
	}
	return nil
}

// ClaimResult reports the outcome of an indexing claim.
type ClaimResult struct {
	// Claimed is true when this caller moved the document to queued and
	// owns the submission.
	Claimed bool
	// State is the state observed when the claim was not granted.
	State models.IndexingState
	// TaskID is the covering task id when the document was already
	// queued or indexing.
	TaskID string
}

var claimScript = redis.NewScript(`
local state = redis.call('GET', KEYS[1])
if state == false then
  state = 'unindexed'
end
if state == 'queued' or state == 'indexing' or state == 'ready' then
  local task = redis.call('GET', KEYS[2])
  return {0, state, task or ''}
end
redis.call('SET', KEYS[1], 'queued')
redis.call('SET', KEYS[2], ARGV[1])
return {1, state, ARGV[1]}
`)

// Claim atomically moves an unindexed or failed document to queued and
// records taskID as the covering task. Exactly one of any number of
// concurrent claims wins; losers observe the current state and, when a
// submission already covers the document, the winning task id.
func (s *StateStore) Claim(ctx context.Context, documentID, taskID string) (ClaimResult, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{stateKey(documentID), taskKey(documentID)}, taskID).Slice()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to claim indexing: %w", err)
	}
	if len(res) != 3 {
		return ClaimResult{}, fmt.Errorf("unexpected claim reply: %v", res)
	}
	claimed, _ := res[0].(int64)
	state, _ := res[1].(string)
	task, _ := res[2].(string)

	out := ClaimResult{State: models.IndexingState(state), TaskID: task}
	if claimed == 1 {
		out.Claimed = true
		out.State = models.StateQueued
	}
	return out, nil
}

// Force sets the state without legality checks. Used when the pipeline
// discovers an already-populated namespace and the document is ready
// regardless of what the lifecycle says.
func (s *StateStore) Force(ctx context.Context, documentID string, state models.IndexingState) error {
	if err := s.client.Set(ctx, stateKey(documentID), string(state), 0).Err(); err != nil {
		return fmt.Errorf("failed to store indexing state: %w", err)
	}
	return nil
}

// Remove deletes the state and task records as part of teardown.
func (s *StateStore) Remove(ctx context.Context, documentID string) error {
	if err := s.client.Del(ctx, stateKey(documentID), taskKey(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to remove indexing state: %w", err)
	}
	return nil
}

func taskKey(documentID string) string {
	return fmt.Sprintf("doc:%s:task", documentID)
}

// SetTaskID records the id of the indexing task currently covering the
// document, so repeated activations return the in-flight task instead of
// double-submitting work.
func (s *StateStore) SetTaskID(ctx context.Context, documentID, taskID string) error {
	if err := s.client.Set(ctx, taskKey(documentID), taskID, 0).Err(); err != nil {
		return fmt.Errorf("failed to store task id: %w", err)
	}
	return nil
}
