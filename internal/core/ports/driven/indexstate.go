package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// IndexStateStore records the outcome of the last index attempt per article.
type IndexStateStore interface {
	// SaveState stores or replaces the state of an article.
	SaveState(ctx context.Context, state domain.ArticleIndexState) error

	// GetState returns nil and no error when the article was never indexed.
	GetState(ctx context.Context, articleID string) (*domain.ArticleIndexState, error)

	// DeleteState removes the state of an article.
	DeleteState(ctx context.Context, articleID string) error

	// ListStates returns every recorded state.
	ListStates(ctx context.Context) ([]domain.ArticleIndexState, error)
}
