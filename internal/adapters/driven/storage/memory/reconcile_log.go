package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

var _ driven.ReconcileLog = (*ReconcileLog)(nil)

// ReconcileLog is an in-memory driven.ReconcileLog.
type ReconcileLog struct {
	mu   sync.Mutex
	runs []domain.ReconcileRun
}

// NewReconcileLog creates an empty log.
func NewReconcileLog() *ReconcileLog {
	return &ReconcileLog{}
}

func (l *ReconcileLog) Append(_ context.Context, run *domain.ReconcileRun) error {
	if run == nil {
		return domain.ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, *run)
	// Stable, so runs with equal start times keep insertion order.
	sort.SliceStable(l.runs, func(i, j int) bool {
		return l.runs[i].StartedAt.Before(l.runs[j].StartedAt)
	})
	return nil
}

func (l *ReconcileLog) Recent(_ context.Context, limit int) ([]domain.ReconcileRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		limit = domain.ReconcileHistoryLimit
	}
	n := min(limit, len(l.runs))
	out := make([]domain.ReconcileRun, 0, n)
	for i := len(l.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.runs[i])
	}
	return out, nil
}

func (l *ReconcileLog) Trim(_ context.Context, keep int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	if len(l.runs) > keep {
		l.runs = append([]domain.ReconcileRun(nil), l.runs[len(l.runs)-keep:]...)
	}
	return nil
}
