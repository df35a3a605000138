package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// ArticleStore is the primary article store.
// The core reads from it; Put and Delete exist for the driving adapters that own writes.
type ArticleStore interface {
	// Get retrieves an article by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Article, error)

	// Put stores or replaces an article.
	Put(ctx context.Context, article domain.Article) error

	// Delete removes an article. Deleting a missing article is not an error.
	Delete(ctx context.Context, id string) error

	// List returns every article ID in ascending order.
	List(ctx context.Context) ([]string, error)
}

// KeywordSearch performs full-text recall over article content.
type KeywordSearch interface {
	// SearchArticles returns up to limit articles ranked by relevance.
	// Returns domain.ErrQuerySyntax when the backend rejects the query.
	SearchArticles(ctx context.Context, query string, limit int) ([]KeywordHit, error)
}

// KeywordHit represents a keyword search result.
type KeywordHit struct {
	// ArticleID is the matched article.
	ArticleID string

	// Score is the backend relevance; larger is better.
	Score float64
}
