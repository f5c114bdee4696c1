package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/models"
)

// Chain composes a history-aware retriever with a question-answering
// step: condense the question against the chat history, retrieve, then
// stream a grounded answer.
type Chain struct {
	generator llm.Generator
	retriever *Retriever
}

func NewChain(generator llm.Generator, retriever *Retriever) *Chain {
	return &Chain{
		generator: generator,
		retriever: retriever,
	}
}

// Retriever exposes the chain's retriever handle.
func (c *Chain) Retriever() *Retriever {
	return c.retriever
}

// Stream answers the question grounded in retrieved passages, pushing
// token fragments through onToken as they are generated.
func (c *Chain) Stream(ctx context.Context, question string, history []models.ChatTurn, onToken func(string) error) error {
	standalone, err := c.condense(ctx, question, history)
	if err != nil {
		return err
	}

	passages, err := c.retriever.Retrieve(ctx, standalone)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}

	messages := buildMessages(qaPrompt+"\n\n"+renderContext(passages), history, question)
	return c.generator.Stream(ctx, messages, onToken)
}

// condense rewrites a follow-up question into a standalone one. With no
// history the question is already standalone and no model call is made.
func (c *Chain) condense(ctx context.Context, question string, history []models.ChatTurn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	messages := buildMessages(contextualizePrompt, history, question)
	standalone, err := c.generator.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("condensing question: %w", err)
	}
	if strings.TrimSpace(standalone) == "" {
		return question, nil
	}
	return standalone, nil
}

func buildMessages(system string, history []models.ChatTurn, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	for _, turn := range history {
		role := "assistant"
		if turn.Role == "human" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	return append(messages, llm.Message{Role: "user", Content: question})
}

func renderContext(passages []models.Passage) string {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
