package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// Embedder converts text to vectors.
//
// Implementations return errors classified by domain.CodeOf:
// INVALID_ARGUMENT for empty or oversized batches and unknown models,
// TIMEOUT when a request exceeds its deadline and MODEL_NOT_READY when
// the backend is unavailable.
type Embedder interface {
	// Encode embeds texts with model. An empty model selects the default.
	// The returned Dimension is the one reported by the backend.
	Encode(ctx context.Context, texts []string, model string) (*domain.Embeddings, error)

	// Close releases resources.
	Close() error
}

// EmbeddingBackend is one in-process model implementation behind the worker.
type EmbeddingBackend interface {
	// Embed returns one vector per text.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	// Ping validates the backend is reachable.
	Ping(ctx context.Context) error
}

// EmbeddingCache memoises vectors by model and text.
type EmbeddingCache interface {
	// Get returns the cached vector and true on hit.
	Get(ctx context.Context, model, text string) ([]float32, bool)

	// Set stores a vector. Failures are swallowed by implementations.
	Set(ctx context.Context, model, text string, vector []float32)
}
