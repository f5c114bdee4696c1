package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/cache"
	"github.com/docuchat/docuchat/internal/history"
	"github.com/docuchat/docuchat/internal/index"
	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/rag"
	"github.com/docuchat/docuchat/pkg/logger"
)

const appendTimeout = 5 * time.Second

// Engine answers questions for a session, grounded in the session's
// document when its chain is available and falling back to plain chat
// when it is not.
type Engine struct {
	cache     *cache.Cache
	pipeline  *index.Pipeline
	embedder  llm.Embedder
	generator llm.Generator
	history   history.Store
	logger    logger.Logger
	topK      int
}

func NewEngine(
	chainCache *cache.Cache,
	pipeline *index.Pipeline,
	embedder llm.Embedder,
	generator llm.Generator,
	hist history.Store,
	log logger.Logger,
	topK int,
) *Engine {
	return &Engine{
		cache:     chainCache,
		pipeline:  pipeline,
		embedder:  embedder,
		generator: generator,
		history:   hist,
		logger:    log,
		topK:      topK,
	}
}

// Answer streams the response through emit as fragments are generated.
// Exactly one history append of (question, fragments-delivered-so-far)
// happens before Answer returns, whether the stream completes, fails, or
// the consumer disconnects mid-way.
func (e *Engine) Answer(ctx context.Context, sessionID, question string, emit func(string) error) error {
	turns, err := e.history.Read(ctx, sessionID)
	if err != nil {
		e.logger.Warn("Failed to read chat history, continuing without it",
			logger.String("sessionId", sessionID),
			logger.Error(err),
		)
		turns = nil
	}

	var emitted strings.Builder
	forward := func(token string) error {
		if err := emit(token); err != nil {
			return err
		}
		emitted.WriteString(token)
		return nil
	}

	defer func() {
		// The finalizer must survive a cancelled request context.
		appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
		defer cancel()
		if err := e.history.Append(appendCtx, sessionID, question, emitted.String()); err != nil {
			e.logger.Error("Failed to persist chat exchange",
				logger.String("sessionId", sessionID),
				logger.Error(err),
			)
		}
	}()

	entry, err := e.cache.GetOrBuild(ctx, sessionID, e.attach(sessionID))
	if err != nil {
		if errors.Is(err, models.ErrNotReady) {
			// No indexed document for this session: answer ungrounded.
			return e.generator.Stream(ctx, plainMessages(turns, question), forward)
		}
		return err
	}

	return entry.Chain.Stream(ctx, question, turns, forward)
}

// History returns the session's recorded turns in order.
func (e *Engine) History(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	return e.history.Read(ctx, sessionID)
}

// attach builds a cache entry from the document's persisted namespace.
// It never triggers an embedding run; an unindexed document surfaces
// ErrNotReady through the pipeline.
func (e *Engine) attach(documentID string) cache.BuildFunc {
	return func(ctx context.Context) (*cache.Entry, error) {
		searcher, err := e.pipeline.Attach(ctx, documentID)
		if err != nil {
			return nil, err
		}
		retriever := rag.NewRetriever(e.embedder, searcher, e.topK)
		return &cache.Entry{
			Retriever: retriever,
			Chain:     rag.NewChain(e.generator, retriever),
		}, nil
	}
}

func plainMessages(turns []models.ChatTurn, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+1)
	for _, turn := range turns {
		role := "assistant"
		if turn.Role == "human" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	return append(messages, llm.Message{Role: "user", Content: question})
}
