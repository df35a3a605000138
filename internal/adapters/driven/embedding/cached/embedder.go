// Package cached wraps an Embedder with a vector cache.
package cached

import (
	"context"
	"fmt"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/metrics"
)

// Ensure Embedder implements the interface.
var _ driven.Embedder = (*Embedder)(nil)

// Embedder serves cached vectors and sends only misses to the inner embedder.
type Embedder struct {
	inner driven.Embedder
	cache driven.EmbeddingCache
	model string
}

// New creates a caching decorator. defaultModel resolves calls made without a model.
func New(inner driven.Embedder, cache driven.EmbeddingCache, defaultModel string) *Embedder {
	if defaultModel == "" {
		defaultModel = domain.DefaultEmbeddingModel
	}
	return &Embedder{inner: inner, cache: cache, model: defaultModel}
}

// Encode returns vectors in input order, embedding only uncached texts.
func (e *Embedder) Encode(ctx context.Context, texts []string, model string) (*domain.Embeddings, error) {
	if model == "" {
		model = e.model
	}
	if len(texts) == 0 || len(texts) > domain.MaxEmbedBatch {
		return e.inner.Encode(ctx, texts, model)
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	dim := 0

	for i, t := range texts {
		if v, ok := e.cache.Get(ctx, model, t); ok && (dim == 0 || len(v) == dim) {
			vectors[i] = v
			dim = len(v)
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		out, err := e.inner.Encode(ctx, missTexts, model)
		if err != nil {
			return nil, err
		}
		if dim != 0 && out.Dimension != dim {
			// Stale entries from a different model build; embed everything fresh.
			return e.refresh(ctx, texts, model)
		}
		dim = out.Dimension
		for j, i := range missIdx {
			vectors[i] = out.Vectors[j]
			e.cache.Set(ctx, model, texts[i], out.Vectors[j])
		}
	}

	return &domain.Embeddings{Dimension: dim, Vectors: vectors}, nil
}

func (e *Embedder) refresh(ctx context.Context, texts []string, model string) (*domain.Embeddings, error) {
	out, err := e.inner.Encode(ctx, texts, model)
	if err != nil {
		return nil, fmt.Errorf("re-embedding after cache mismatch: %w", err)
	}
	for i, t := range texts {
		e.cache.Set(ctx, model, t, out.Vectors[i])
	}
	return out, nil
}

// Close closes the inner embedder.
func (e *Embedder) Close() error {
	return e.inner.Close()
}
