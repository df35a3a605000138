package driving

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// IndexService keeps derived state in step with the article store.
type IndexService interface {
	// EnqueueArticleForIndexing schedules an article. Enqueueing an ID already
	// pending is a no-op. Returns immediately.
	EnqueueArticleForIndexing(articleID string)

	// HandleDeletedArticle removes every derived record of an article.
	// It is idempotent.
	HandleDeletedArticle(ctx context.Context, articleID string) error

	// Rebuild resets a collection and re-enqueues every article.
	Rebuild(ctx context.Context, c domain.Collection) (int, error)

	// Status returns a snapshot of the drain loop.
	Status() domain.IndexStatus

	// Wait blocks until the queue is empty and the loop is idle.
	Wait(ctx context.Context) error
}

// Reconciler re-enqueues articles whose derived state is stale.
type Reconciler interface {
	// Reconcile runs one pass.
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
}
