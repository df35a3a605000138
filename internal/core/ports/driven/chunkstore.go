package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// ChunkStore persists chunks.
type ChunkStore interface {
	// ReplaceChunks atomically swaps every chunk of an article for the given set.
	// An empty set leaves the article with no chunks.
	ReplaceChunks(ctx context.Context, articleID string, chunks []domain.Chunk) error

	// DeleteChunks removes every chunk of an article.
	DeleteChunks(ctx context.Context, articleID string) error

	// GetChunks returns the chunks of an article ordered by index.
	GetChunks(ctx context.Context, articleID string) ([]domain.Chunk, error)

	// GetChunksByIDs returns the chunks that exist among ids, keyed by ID.
	GetChunksByIDs(ctx context.Context, ids []string) (map[string]domain.Chunk, error)
}
