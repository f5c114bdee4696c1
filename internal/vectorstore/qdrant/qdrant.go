package qdrant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/vectorstore"
)

const namespacePrefix = "doc_"

// Index is a minimal REST client to Qdrant. Each document namespace maps
// to one collection with cosine distance.
type Index struct {
	url    string
	apiKey string
	client *http.Client
}

func NewIndex(cfg config.QdrantConfig) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// CreateNamespace implements vectorstore.Index.
func (q *Index) CreateNamespace(ctx context.Context, name string, dim int, passages []models.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return fmt.Errorf("passages and vectors length mismatch: %d vs %d", len(passages), len(vectors))
	}
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension: %d", dim)
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), create, nil); err != nil {
		return err
	}

	points := make([]map[string]any, len(passages))
	for i, p := range passages {
		points[i] = map[string]any{
			"id":     i,
			"vector": vectors[i],
			"payload": map[string]any{
				"passage_id": p.ID,
				"text":       p.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", name), body, nil); err != nil {
		// Leave no partially written namespace behind a failed ingest.
		_ = q.DeleteNamespace(ctx, name)
		return err
	}
	return nil
}

// NamespaceExists implements vectorstore.Index.
func (q *Index) NamespaceExists(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/exists", name), nil, &resp); err != nil {
		return false, err
	}
	return resp.Result.Exists, nil
}

// Dimension implements vectorstore.Index.
func (q *Index) Dimension(ctx context.Context, name string) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", name), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

// Attach implements vectorstore.Index.
func (q *Index) Attach(name string) vectorstore.Searcher {
	return &searcher{index: q, namespace: name}
}

// DeleteNamespace implements vectorstore.Index.
func (q *Index) DeleteNamespace(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.url+fmt.Sprintf("/collections/%s", name), nil)
	if err != nil {
		return err
	}
	q.auth(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant DELETE %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant DELETE %s failed: %s", name, resp.Status)
	}
	return nil
}

// Reset implements vectorstore.Index.
func (q *Index) Reset(ctx context.Context) error {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return err
	}
	for _, c := range resp.Result.Collections {
		if !strings.HasPrefix(c.Name, namespacePrefix) {
			continue
		}
		if err := q.DeleteNamespace(ctx, c.Name); err != nil {
			return err
		}
	}
	return nil
}

// Ping implements vectorstore.Index.
func (q *Index) Ping(ctx context.Context) error {
	return q.do(ctx, http.MethodGet, "/collections", nil, nil)
}

type searcher struct {
	index     *Index
	namespace string
}

func (s *searcher) Search(ctx context.Context, vector []float32, k int) ([]models.Passage, error) {
	if k <= 0 {
		k = 2
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.index.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.namespace), req, &resp); err != nil {
		return nil, err
	}
	passages := make([]models.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := models.Passage{Score: r.Score}
		if v, ok := r.Payload["passage_id"].(string); ok {
			p.ID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			p.Text = v
		}
		passages = append(passages, p)
	}
	return passages, nil
}

func (q *Index) auth(req *http.Request) {
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

func (q *Index) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	q.auth(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
