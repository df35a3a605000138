package driving

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// Scheduler runs reconcile passes in the background.
type Scheduler interface {
	// Start runs a pass immediately and then on schedule.
	// Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the schedule and waits for a running pass to finish.
	Stop() error

	// History returns up to limit recorded passes, newest first.
	History(ctx context.Context, limit int) ([]domain.ReconcileRun, error)
}
