package chat

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

	"github.com/docuchat/docuchat/internal/cache"
	"github.com/docuchat/docuchat/internal/index"
	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
)

type exchange struct {
	human string
	ai    string
}

type fakeHistory struct {
	mu       sync.Mutex
	sessions map[string][]exchange
	readErr  error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{sessions: make(map[string][]exchange)}
}

func (f *fakeHistory) Append(_ context.Context, sessionID, humanText, aiText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID] = append(f.sessions[sessionID], exchange{human: humanText, ai: aiText})
	return nil
}

func (f *fakeHistory) Read(_ context.Context, sessionID string) ([]models.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	var turns []models.ChatTurn
	for _, ex := range f.sessions[sessionID] {
		turns = append(turns,
			models.ChatTurn{Role: "human", Text: ex.human},
			models.ChatTurn{Role: "assistant", Text: ex.ai},
		)
	}
	return turns, nil
}

func (f *fakeHistory) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeHistory) FlushAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = make(map[string][]exchange)
	return nil
}

func (f *fakeHistory) Ping(_ context.Context) error { return nil }

func (f *fakeHistory) recorded(sessionID string) []exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchange(nil), f.sessions[sessionID]...)
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) MaxBatch() int { return 100 }

type fakeGenerator struct {
	tokens    []string
	streamErr error
}

func (f *fakeGenerator) Complete(_ context.Context, _ []llm.Message) (string, error) {
	return "standalone question", nil
}

func (f *fakeGenerator) Stream(_ context.Context, _ []llm.Message, onToken func(string) error) error {
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return f.streamErr
}

type fakeIndex struct {
	mu         sync.Mutex
	namespaces map[string][]models.Passage
}

func (f *fakeIndex) CreateNamespace(_ context.Context, name string, _ int, passages []models.Passage, _ [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces[name] = passages
	return nil
}

func (f *fakeIndex) NamespaceExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.namespaces[name]
	return ok, nil
}

func (f *fakeIndex) Dimension(_ context.Context, name string) (int, error) {
	return 3, nil
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

func (f *fakeIndex) Reset(_ context.Context) error { return nil }

func (f *fakeIndex) Ping(_ context.Context) error { return nil }

type fakeSearcher struct {
	index *fakeIndex
	name  string
}

func (s *fakeSearcher) Search(_ context.Context, _ []float32, k int) ([]models.Passage, error) {
	s.index.mu.Lock()
	defer s.index.mu.Unlock()
	passages := s.index.namespaces[s.name]
	if k > len(passages) {
		k = len(passages)
	}
	return passages[:k], nil
}

type noBlobs struct{}

func (noBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("no blob %s", key)
}

func newTestEngine(gen *fakeGenerator, hist *fakeHistory, idx *fakeIndex) *Engine {
	if idx == nil {
		idx = &fakeIndex{namespaces: make(map[string][]models.Passage)}
	}
	embedder := &fakeEmbedder{}
	pipeline := index.NewPipeline(noBlobs{}, embedder, idx, index.NewSplitter(100, 0), logger.NewTestLogger())
	return NewEngine(cache.New(), pipeline, embedder, gen, hist, logger.NewTestLogger(), 2)
}

func TestAnswer_GroundedStream(t *testing.T) {
	idx := &fakeIndex{namespaces: map[string][]models.Passage{
		models.Namespace("sess1"): {{ID: "sess1:0", Text: "The answer is 42."}},
	}}
	gen := &fakeGenerator{tokens: []string{"It ", "is ", "42."}}
	hist := newFakeHistory()
	engine := newTestEngine(gen, hist, idx)

	var got strings.Builder
	err := engine.Answer(context.Background(), "sess1", "what is the answer?", func(tok string) error {
		got.WriteString(tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "It is 42.", got.String())

	recorded := hist.recorded("sess1")
	require.Len(t, recorded, 1)
	assert.Equal(t, "what is the answer?", recorded[0].human)
	assert.Equal(t, "It is 42.", recorded[0].ai)
}

func TestAnswer_FallsBackWithoutNamespace(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"plain ", "answer"}}
	hist := newFakeHistory()
	engine := newTestEngine(gen, hist, nil)

	var got strings.Builder
	err := engine.Answer(context.Background(), "sess1", "hello?", func(tok string) error {
		got.WriteString(tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", got.String())

	recorded := hist.recorded("sess1")
	require.Len(t, recorded, 1)
	assert.Equal(t, "plain answer", recorded[0].ai)
}

func TestAnswer_DisconnectRecordsPartialAnswer(t *testing.T) {
	idx := &fakeIndex{namespaces: map[string][]models.Passage{
		models.Namespace("sess1"): {{ID: "sess1:0", Text: "ctx"}},
	}}
	gen := &fakeGenerator{tokens: []string{"one ", "two ", "three"}}
	hist := newFakeHistory()
	engine := newTestEngine(gen, hist, idx)

	delivered := 0
	err := engine.Answer(context.Background(), "sess1", "q", func(tok string) error {
		delivered++
		if delivered == 3 {
			return errors.New("client went away")
		}
		return nil
	})
	require.Error(t, err)

	// only the delivered prefix is recorded, exactly once
	recorded := hist.recorded("sess1")
	require.Len(t, recorded, 1)
	assert.Equal(t, "one two ", recorded[0].ai)
}

func TestAnswer_GeneratorFailureStillAppends(t *testing.T) {
	idx := &fakeIndex{namespaces: map[string][]models.Passage{
		models.Namespace("sess1"): {{ID: "sess1:0", Text: "ctx"}},
	}}
	gen := &fakeGenerator{streamErr: errors.New("upstream exploded")}
	hist := newFakeHistory()
	engine := newTestEngine(gen, hist, idx)

	err := engine.Answer(context.Background(), "sess1", "q", func(string) error { return nil })
	require.Error(t, err)

	recorded := hist.recorded("sess1")
	require.Len(t, recorded, 1)
	assert.Equal(t, "q", recorded[0].human)
	assert.Equal(t, "", recorded[0].ai)
}

func TestAnswer_HistoryReadFailureDegrades(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"ok"}}
	hist := newFakeHistory()
	hist.readErr = errors.New("redis down")
	engine := newTestEngine(gen, hist, nil)

	var got strings.Builder
	err := engine.Answer(context.Background(), "sess1", "q", func(tok string) error {
		got.WriteString(tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.String())
}

func TestHistory_ReturnsTurnsInOrder(t *testing.T) {
	hist := newFakeHistory()
	require.NoError(t, hist.Append(context.Background(), "sess1", "q1", "a1"))
	require.NoError(t, hist.Append(context.Background(), "sess1", "q2", "a2"))

	engine := newTestEngine(&fakeGenerator{}, hist, nil)
	turns, err := engine.History(context.Background(), "sess1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "q1", turns[0].Text)
	assert.Equal(t, "human", turns[0].Role)
	assert.Equal(t, "a2", turns[3].Text)
	assert.Equal(t, "assistant", turns[3].Role)
}
