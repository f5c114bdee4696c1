package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/models"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL  string
	apiKey   string
	model    string
	maxBatch int
	client   *http.Client
}

func NewOpenAIEmbedder(cfg config.LLMConfig) *OpenAIEmbedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxBatch := cfg.EmbedBatchSize
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &OpenAIEmbedder{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		model:    cfg.EmbedModel,
		maxBatch: maxBatch,
		client:   &http.Client{Timeout: timeout},
	}
}

// MaxBatch implements Embedder.
func (e *OpenAIEmbedder) MaxBatch() int {
	return e.maxBatch
}

// Embed implements Embedder. The input slice must not exceed MaxBatch;
// paging through larger inputs is the caller's concern.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > e.maxBatch {
		return nil, fmt.Errorf("batch of %d exceeds embedding limit %d", len(texts), e.maxBatch)
	}

	body := map[string]any{
		"input": texts,
		"model": e.model,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings request: %v", models.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embeddings request failed: %s", models.ErrUpstreamFailure, resp.Status)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding embeddings: %v", models.ErrUpstreamFailure, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", models.ErrUpstreamFailure, len(out.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", models.ErrUpstreamFailure, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
