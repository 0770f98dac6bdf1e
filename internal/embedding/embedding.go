// Package embedding provides the pluggable EmbeddingProvider abstraction and
// two implementations: an HTTP provider compatible with LM Studio/OpenAI/
// Ollama-style `/embeddings` endpoints, and a deterministic local fallback
// so the system stays usable when no provider is configured.
package embedding

import (
	"context"
)

// Provider produces a fixed-dimension unit vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}
