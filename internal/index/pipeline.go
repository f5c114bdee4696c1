package index

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
)

// BlobOpener is the slice of the storage backend the pipeline needs.
type BlobOpener interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Pipeline turns an uploaded document into a populated vector namespace.
// Build is idempotent: an already-populated namespace is verified and
// attached without re-embedding.
type Pipeline struct {
	blobs    BlobOpener
	embedder llm.Embedder
	index    vectorstore.Index
	splitter *Splitter
	logger   logger.Logger

	mu  sync.Mutex
	dim int // embedding dimension, learned from the first successful batch
}

func NewPipeline(blobs BlobOpener, embedder llm.Embedder, index vectorstore.Index, splitter *Splitter, log logger.Logger) *Pipeline {
	return &Pipeline{
		blobs:    blobs,
		embedder: embedder,
		index:    index,
		splitter: splitter,
		logger:   log,
	}
}

// Build ensures the namespace for documentID exists and is complete.
func (p *Pipeline) Build(ctx context.Context, documentID, blobKey string) error {
	ns := models.Namespace(documentID)

	exists, err := p.index.NamespaceExists(ctx, ns)
	if err != nil {
		return fmt.Errorf("failed to check namespace %s: %w", ns, err)
	}
	if exists {
		p.logger.Info("Namespace already populated, skipping ingest",
			logger.String("namespace", ns),
		)
		return p.verifySchema(ctx, ns)
	}

	reader, err := p.blobs.Get(ctx, blobKey)
	if err != nil {
		return fmt.Errorf("failed to open document blob: %w", err)
	}
	defer reader.Close()

	text, err := Load(reader)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s produced no passages", documentID)
	}
	p.logger.Info("Split document into passages",
		logger.String("documentId", documentID),
		logger.Int("passages", len(chunks)),
	)

	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	passages := make([]models.Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = models.Passage{
			ID:   fmt.Sprintf("%s:%d", documentID, i),
			Text: c,
		}
	}

	dim := len(vectors[0])
	if err := p.index.CreateNamespace(ctx, ns, dim, passages, vectors); err != nil {
		return fmt.Errorf("failed to persist namespace %s: %w", ns, err)
	}
	p.rememberDim(dim)

	p.logger.Info("Namespace ingested",
		logger.String("namespace", ns),
		logger.Int("passages", len(passages)),
		logger.Int("dimension", dim),
	)
	return nil
}

// Attach returns a search handle for a populated namespace, or ErrNotReady
// when the namespace does not exist yet.
func (p *Pipeline) Attach(ctx context.Context, documentID string) (vectorstore.Searcher, error) {
	ns := models.Namespace(documentID)
	exists, err := p.index.NamespaceExists(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to check namespace %s: %w", ns, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: namespace %s", models.ErrNotReady, ns)
	}
	if err := p.verifySchema(ctx, ns); err != nil {
		return nil, err
	}
	return p.index.Attach(ns), nil
}

// embedAll pages through batches of at most MaxBatch passages. A failure
// in any batch fails the whole build; partially embedded documents are
// never ingested.
func (p *Pipeline) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	maxBatch := p.embedder.MaxBatch()
	vectors := make([][]float32, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(chunks); start += maxBatch {
		start := start
		end := start + maxBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			batch, err := p.embedder.Embed(gCtx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) rememberDim(dim int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim == 0 {
		p.dim = dim
	}
}

// verifySchema compares the namespace's stored dimension against the
// embedder's known output dimension. A mismatched namespace must never be
// served by a retriever.
func (p *Pipeline) verifySchema(ctx context.Context, ns string) error {
	stored, err := p.index.Dimension(ctx, ns)
	if err != nil {
		return fmt.Errorf("failed to read namespace schema %s: %w", ns, err)
	}
	if stored <= 0 {
		return fmt.Errorf("%w: namespace %s has no vector schema", models.ErrIndexCorruption, ns)
	}

	p.mu.Lock()
	known := p.dim
	p.mu.Unlock()
	if known != 0 && stored != known {
		return fmt.Errorf("%w: namespace %s has dimension %d, embedder produces %d",
			models.ErrIndexCorruption, ns, stored, known)
	}
	return nil
}
