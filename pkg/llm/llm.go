// Package llm defines the interface for text-generation and embedding
// backends. Implementations handle protocol-specific details such as
// request formatting, authentication, and response parsing.
package llm

import "context"

// Message represents a chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a stateless completion service: messages in, text out.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Embedder turns texts into embedding vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds common configuration for LLM backends.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	EmbedModel  string
	MaxTokens   int
	Temperature float32
}
