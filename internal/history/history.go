package history

import (
	"context"

	"github.com/docuchat/docuchat/internal/models"
)

// Store is the append-only per-session chat log.
type Store interface {
	// Append records one exchange. The assistant text may be partial
	// when the stream was cut off; it is recorded as-is.
	Append(ctx context.Context, sessionID, humanText, aiText string) error
	// Read returns the session's turns in order.
	Read(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
	// Delete drops one session's log.
	Delete(ctx context.Context, sessionID string) error
	// FlushAll drops every session.
	FlushAll(ctx context.Context) error
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
