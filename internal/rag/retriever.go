package rag

import (
	"context"
	"fmt"

	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

// Retriever embeds a query and similarity-searches one document's
// namespace. The underlying handles are read-only; a single Retriever may
// serve concurrent conversations.
type Retriever struct {
	embedder llm.Embedder
	searcher vectorstore.Searcher
	topK     int
}

func NewRetriever(embedder llm.Embedder, searcher vectorstore.Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = 2
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
	}
}

// Retrieve returns the top-k passages most similar to the query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.Passage, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected one query vector, got %d", models.ErrUpstreamFailure, len(vectors))
	}
	return r.searcher.Search(ctx, vectors[0], r.topK)
}
