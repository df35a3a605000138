package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// ==================== Index State Store ====================

// indexStateStore implements driven.IndexStateStore.
type indexStateStore struct {
	store *Store
}

var _ driven.IndexStateStore = (*indexStateStore)(nil)

// SaveState stores or replaces the state of an article.
func (s *indexStateStore) SaveState(ctx context.Context, state domain.ArticleIndexState) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO index_state (article_id, content_hash, chunk_count, outcome, error, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			outcome = excluded.outcome,
			error = excluded.error,
			indexed_at = excluded.indexed_at
	`, state.ArticleID, state.ContentHash, state.ChunkCount, string(state.Outcome),
		nullString(state.Error), formatTime(state.IndexedAt))
	if err != nil {
		return fmt.Errorf("saving index state: %w", err)
	}
	return nil
}

// GetState returns nil and no error when the article was never indexed.
func (s *indexStateStore) GetState(ctx context.Context, articleID string) (*domain.ArticleIndexState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT article_id, content_hash, chunk_count, outcome, error, indexed_at
		FROM index_state WHERE article_id = ?
	`, articleID)

	state, err := scanIndexState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return state, err
}

// DeleteState removes the state of an article.
func (s *indexStateStore) DeleteState(ctx context.Context, articleID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM index_state WHERE article_id = ?", articleID); err != nil {
		return fmt.Errorf("deleting index state: %w", err)
	}
	return nil
}

// ListStates returns every recorded state ordered by article ID.
func (s *indexStateStore) ListStates(ctx context.Context) ([]domain.ArticleIndexState, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT article_id, content_hash, chunk_count, outcome, error, indexed_at
		FROM index_state ORDER BY article_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying index state: %w", err)
	}
	defer rows.Close()

	var states []domain.ArticleIndexState //nolint:prealloc // size unknown from query
	for rows.Next() {
		state, err := scanIndexState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index state: %w", err)
	}
	return states, nil
}

func scanIndexState(row rowScanner) (*domain.ArticleIndexState, error) {
	var state domain.ArticleIndexState
	var outcome, indexedAt string
	var errMsg sql.NullString
	if err := row.Scan(&state.ArticleID, &state.ContentHash, &state.ChunkCount,
		&outcome, &errMsg, &indexedAt); err != nil {
		return nil, fmt.Errorf("scanning index state: %w", err)
	}
	state.Outcome = domain.IndexOutcome(outcome)
	if errMsg.Valid {
		state.Error = errMsg.String
	}
	state.IndexedAt = parseTime(indexedAt)
	return &state, nil
}
