package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

type reconcileLog struct {
	store *Store
}

var _ driven.ReconcileLog = (*reconcileLog)(nil)

func (l *reconcileLog) Append(ctx context.Context, run *domain.ReconcileRun) error {
	if run == nil {
		return domain.ErrInvalidArgument
	}
	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO reconcile_runs (started_at, ended_at, scanned, enqueued, orphans, up_to_date, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, formatTime(run.StartedAt), formatTime(run.EndedAt),
		run.Report.Scanned, run.Report.Enqueued, run.Report.Orphans, run.Report.UpToDate,
		nullString(run.Error))
	if err != nil {
		return fmt.Errorf("recording reconcile run: %w", err)
	}
	return nil
}

func (l *reconcileLog) Recent(ctx context.Context, limit int) ([]domain.ReconcileRun, error) {
	if limit <= 0 {
		limit = domain.ReconcileHistoryLimit
	}
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT started_at, ended_at, scanned, enqueued, orphans, up_to_date, error
		FROM reconcile_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reconcile runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ReconcileRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			run                domain.ReconcileRun
			startedAt, endedAt string
			errMsg             sql.NullString
		)
		if err := rows.Scan(&startedAt, &endedAt, &run.Report.Scanned, &run.Report.Enqueued,
			&run.Report.Orphans, &run.Report.UpToDate, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning reconcile run: %w", err)
		}
		run.StartedAt = parseTime(startedAt)
		run.EndedAt = parseTime(endedAt)
		run.Error = errMsg.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reconcile runs: %w", err)
	}
	return runs, nil
}

func (l *reconcileLog) Trim(ctx context.Context, keep int) error {
	_, err := l.store.db.ExecContext(ctx, `
		DELETE FROM reconcile_runs
		WHERE id NOT IN (
			SELECT id FROM reconcile_runs ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("trimming reconcile runs: %w", err)
	}
	return nil
}
