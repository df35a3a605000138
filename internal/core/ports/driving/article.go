package driving

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// ArticleService is the write path of the surrounding application: it stores
// articles and notifies the indexer.
type ArticleService interface {
	// Put stores an article and enqueues it for indexing.
	Put(ctx context.Context, id, content string) error

	// Delete removes an article and every record derived from it.
	Delete(ctx context.Context, id string) error

	// Get retrieves an article by ID.
	Get(ctx context.Context, id string) (*domain.Article, error)

	// List returns every article ID.
	List(ctx context.Context) ([]string, error)

	// Chunks returns the indexed chunks of an article.
	Chunks(ctx context.Context, id string) ([]domain.Chunk, error)
}
