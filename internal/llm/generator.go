package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/models"
)

// OpenAIGenerator calls an OpenAI-compatible /chat/completions endpoint,
// streaming token deltas over SSE.
type OpenAIGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIGenerator(cfg config.LLMConfig) *OpenAIGenerator {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIGenerator{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.ChatModel,
		// No client timeout on streaming: the request lives as long as
		// the stream; cancellation comes from ctx.
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Stream implements Generator.
func (g *OpenAIGenerator) Stream(ctx context.Context, messages []Message, onToken func(string) error) error {
	resp, err := g.post(ctx, chatRequest{Model: g.model, Messages: messages, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
			if ok && payload != "[DONE]" {
				var chunk struct {
					Choices []struct {
						Delta struct {
							Content string `json:"content"`
						} `json:"delta"`
					} `json:"choices"`
				}
				if jsonErr := json.Unmarshal([]byte(payload), &chunk); jsonErr == nil {
					for _, c := range chunk.Choices {
						if c.Delta.Content == "" {
							continue
						}
						if tokenErr := onToken(c.Delta.Content); tokenErr != nil {
							return tokenErr
						}
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: reading stream: %v", models.ErrUpstreamFailure, err)
		}
	}
}

// Complete implements Generator.
func (g *OpenAIGenerator) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := g.post(ctx, chatRequest{Model: g.model, Messages: messages})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding completion: %v", models.ErrUpstreamFailure, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", models.ErrUpstreamFailure)
	}
	return out.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: chat request: %v", models.ErrUpstreamFailure, err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: chat request failed: %s", models.ErrUpstreamFailure, resp.Status)
	}
	return resp, nil
}
