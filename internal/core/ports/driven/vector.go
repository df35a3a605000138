package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// VectorStore keeps one fixed-dimension vector table per collection.
//
// A collection's dimension is fixed by the first EnsureReady call. A later call
// with a different dimension returns a *domain.ConflictError; only Reset clears it.
type VectorStore interface {
	// EnsureReady creates the collection at dim or verifies it already has dim.
	EnsureReady(ctx context.Context, c domain.Collection, dim int) error

	// Dimension returns the collection dimension, or 0 if it was never initialised.
	Dimension(ctx context.Context, c domain.Collection) (int, error)

	// Upsert replaces entries by key.
	Upsert(ctx context.Context, c domain.Collection, entries []domain.VectorEntry) error

	// ReplaceForOwner deletes every entry whose group is owner, then inserts entries.
	// The swap is atomic.
	ReplaceForOwner(ctx context.Context, c domain.Collection, owner string, entries []domain.VectorEntry) error

	// Delete removes entries by key. Missing keys are ignored.
	Delete(ctx context.Context, c domain.Collection, keys []string) error

	// DeleteByOwner removes every entry in a group.
	DeleteByOwner(ctx context.Context, c domain.Collection, owner string) error

	// QuerySimilar returns hits ordered by ascending distance.
	// An uninitialised collection yields no hits and no error.
	QuerySimilar(ctx context.Context, c domain.Collection, vector []float32, q domain.SimilarityQuery) ([]domain.VectorHit, error)

	// Reset drops the collection so that the next EnsureReady may pick a new dimension.
	Reset(ctx context.Context, c domain.Collection) error

	// Count returns the number of entries in the collection.
	Count(ctx context.Context, c domain.Collection) (int, error)

	// Close releases resources.
	Close() error
}
