package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// ArticleProcessor derives chunks and the entity card from an article.
// Implementations are pure: the same article always yields the same result.
type ArticleProcessor interface {
	Process(ctx context.Context, article *domain.Article) (*domain.Derived, error)
}
