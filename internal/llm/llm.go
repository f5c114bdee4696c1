package llm

import "context"

// Message is one prompt turn sent to the generation backend.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Embedder turns passages into vectors. Implementations may cap the
// batch size; callers page through MaxBatch-sized slices.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatch() int
}

// Generator produces model output. Stream pushes token fragments through
// onToken as they arrive and stops promptly when ctx is cancelled or
// onToken returns an error.
type Generator interface {
	Stream(ctx context.Context, messages []Message, onToken func(string) error) error
	Complete(ctx context.Context, messages []Message) (string, error)
}
