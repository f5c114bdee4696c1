package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/internal/models"
)

// RedisStore keeps each session's history in a Redis list of JSON turns.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func messageKey(sessionID string) string {
	return fmt.Sprintf("message_store:%s", sessionID)
}

// Append implements Store. The human and assistant turns are pushed in
// one pipeline so a reader never observes the question without its answer.
func (s *RedisStore) Append(ctx context.Context, sessionID, humanText, aiText string) error {
	human, err := json.Marshal(models.ChatTurn{Role: "human", Text: humanText})
	if err != nil {
		return err
	}
	ai, err := json.Marshal(models.ChatTurn{Role: "assistant", Text: aiText})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, messageKey(sessionID), human)
	pipe.RPush(ctx, messageKey(sessionID), ai)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append chat history: %w", err)
	}
	return nil
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	raw, err := s.client.LRange(ctx, messageKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}
	turns := make([]models.ChatTurn, 0, len(raw))
	for _, r := range raw {
		var turn models.ChatTurn
		if err := json.Unmarshal([]byte(r), &turn); err != nil {
			return nil, fmt.Errorf("failed to parse chat turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, messageKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete chat history: %w", err)
	}
	return nil
}

// FlushAll implements Store.
func (s *RedisStore) FlushAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, messageKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to flush chat history: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan chat history: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
