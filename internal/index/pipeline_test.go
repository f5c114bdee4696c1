package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
)

type fakeBlobs struct {
	content map[string]string
}

func (f *fakeBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := f.content[key]
	if !ok {
		return nil, fmt.Errorf("no blob %s", key)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	embedded int
	failAt   int // fail the nth call, 0 disables
	dim      int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, errors.New("embedding backend down")
	}
	f.embedded += len(texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, f.dim)
		vectors[i][0] = float32(len(texts[i]))
	}
	return vectors, nil
}

func (f *fakeEmbedder) MaxBatch() int { return 2 }

type fakeIndex struct {
	mu         sync.Mutex
	namespaces map[string]fakeNamespace
	dimError   error
}

type fakeNamespace struct {
	dim      int
	passages []models.Passage
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{namespaces: make(map[string]fakeNamespace)}
}

func (f *fakeIndex) CreateNamespace(_ context.Context, name string, dim int, passages []models.Passage, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(passages) != len(vectors) {
		return errors.New("passage/vector count mismatch")
	}
	f.namespaces[name] = fakeNamespace{dim: dim, passages: passages}
	return nil
}

func (f *fakeIndex) NamespaceExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.namespaces[name]
	return ok, nil
}

func (f *fakeIndex) Dimension(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dimError != nil {
		return 0, f.dimError
	}
	ns, ok := f.namespaces[name]
	if !ok {
		return 0, fmt.Errorf("no namespace %s", name)
	}
	return ns.dim, nil
}

func (f *fakeIndex) Attach(name string) vectorstore.Searcher {
	return &fakeSearcher{index: f, name: name}
}

func (f *fakeIndex) DeleteNamespace(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.namespaces, name)
	return nil
}

func (f *fakeIndex) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces = make(map[string]fakeNamespace)
	return nil
}

func (f *fakeIndex) Ping(_ context.Context) error { return nil }

type fakeSearcher struct {
	index *fakeIndex
	name  string
}

func (s *fakeSearcher) Search(_ context.Context, _ []float32, k int) ([]models.Passage, error) {
	s.index.mu.Lock()
	defer s.index.mu.Unlock()
	ns, ok := s.index.namespaces[s.name]
	if !ok {
		return nil, fmt.Errorf("no namespace %s", s.name)
	}
	if k > len(ns.passages) {
		k = len(ns.passages)
	}
	return ns.passages[:k], nil
}

func newTestPipeline(blobs *fakeBlobs, embedder *fakeEmbedder, idx *fakeIndex) *Pipeline {
	return NewPipeline(blobs, embedder, idx, NewSplitter(40, 0), logger.NewTestLogger())
}

func TestPipelineBuild_IngestsDocument(t *testing.T) {
	blobs := &fakeBlobs{content: map[string]string{
		"doc1_a.txt": "First sentence here. Second sentence here. Third sentence here. Fourth sentence here.",
	}}
	embedder := &fakeEmbedder{dim: 3}
	idx := newFakeIndex()
	p := newTestPipeline(blobs, embedder, idx)

	require.NoError(t, p.Build(context.Background(), "doc1", "doc1_a.txt"))

	ns, ok := idx.namespaces[models.Namespace("doc1")]
	require.True(t, ok)
	assert.Equal(t, 3, ns.dim)
	assert.NotEmpty(t, ns.passages)
	assert.Equal(t, len(ns.passages), embedder.embedded)
	assert.Equal(t, "doc1:0", ns.passages[0].ID)
}

func TestPipelineBuild_SkipsExistingNamespace(t *testing.T) {
	blobs := &fakeBlobs{content: map[string]string{"doc1_a.txt": "Some text here."}}
	embedder := &fakeEmbedder{dim: 3}
	idx := newFakeIndex()
	idx.namespaces[models.Namespace("doc1")] = fakeNamespace{dim: 3}
	p := newTestPipeline(blobs, embedder, idx)

	require.NoError(t, p.Build(context.Background(), "doc1", "doc1_a.txt"))
	assert.Zero(t, embedder.calls, "existing namespace must not be re-embedded")
}

func TestPipelineBuild_EmbeddingFailureAbortsIngest(t *testing.T) {
	blobs := &fakeBlobs{content: map[string]string{
		"doc1_a.txt": "First sentence here. Second sentence here. Third sentence here. Fourth sentence here.",
	}}
	embedder := &fakeEmbedder{dim: 3, failAt: 1}
	idx := newFakeIndex()
	p := newTestPipeline(blobs, embedder, idx)

	err := p.Build(context.Background(), "doc1", "doc1_a.txt")
	require.Error(t, err)
	_, ok := idx.namespaces[models.Namespace("doc1")]
	assert.False(t, ok, "a partially embedded document must never be ingested")
}

func TestPipelineBuild_MissingBlob(t *testing.T) {
	p := newTestPipeline(&fakeBlobs{content: map[string]string{}}, &fakeEmbedder{dim: 3}, newFakeIndex())
	err := p.Build(context.Background(), "doc1", "gone")
	require.Error(t, err)
}

func TestPipelineAttach_NotReady(t *testing.T) {
	p := newTestPipeline(&fakeBlobs{}, &fakeEmbedder{dim: 3}, newFakeIndex())
	_, err := p.Attach(context.Background(), "doc1")
	require.ErrorIs(t, err, models.ErrNotReady)
}

func TestPipelineAttach_AfterBuild(t *testing.T) {
	blobs := &fakeBlobs{content: map[string]string{"doc1_a.txt": "A sentence to index."}}
	embedder := &fakeEmbedder{dim: 3}
	idx := newFakeIndex()
	p := newTestPipeline(blobs, embedder, idx)

	require.NoError(t, p.Build(context.Background(), "doc1", "doc1_a.txt"))

	searcher, err := p.Attach(context.Background(), "doc1")
	require.NoError(t, err)

	passages, err := searcher.Search(context.Background(), []float32{0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "A sentence to index.", passages[0].Text)
}

func TestPipelineAttach_DimensionMismatch(t *testing.T) {
	blobs := &fakeBlobs{content: map[string]string{"doc1_a.txt": "A sentence to index."}}
	embedder := &fakeEmbedder{dim: 3}
	idx := newFakeIndex()
	p := newTestPipeline(blobs, embedder, idx)

	require.NoError(t, p.Build(context.Background(), "doc1", "doc1_a.txt"))

	// another writer corrupted the namespace schema out-of-band
	idx.namespaces[models.Namespace("doc1")] = fakeNamespace{dim: 7}

	_, err := p.Attach(context.Background(), "doc1")
	require.ErrorIs(t, err, models.ErrIndexCorruption)
}
