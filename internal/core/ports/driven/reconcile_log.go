package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// ReconcileLog keeps the outcome of scheduled reconcile passes.
type ReconcileLog interface {
	// Append records a finished run.
	Append(ctx context.Context, run *domain.ReconcileRun) error

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]domain.ReconcileRun, error)

	// Trim drops all but the newest keep runs.
	Trim(ctx context.Context, keep int) error
}
