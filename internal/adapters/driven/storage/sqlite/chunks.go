package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// maxParams bounds the IN list of a single lookup query.
const maxParams = 500

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// ReplaceChunks deletes every chunk of the article and inserts the new set
// in one transaction. created_at survives for chunk IDs that already existed.
func (s *chunkStore) ReplaceChunks(ctx context.Context, articleID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	created := make(map[string]string)
	rows, err := tx.QueryContext(ctx, "SELECT id, created_at FROM chunks WHERE article_id = ?", articleID)
	if err != nil {
		return fmt.Errorf("querying existing chunks: %w", err)
	}
	for rows.Next() {
		var id, createdAt string
		if err := rows.Scan(&id, &createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scanning existing chunk: %w", err)
		}
		created[id] = createdAt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating existing chunks: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE article_id = ?", articleID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, article_id, idx, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		now := formatTime(time.Now())
		for _, chunk := range chunks {
			createdAt, ok := created[chunk.ID]
			if !ok {
				createdAt = formatTime(chunk.CreatedAt)
			}
			if _, err := stmt.ExecContext(ctx, chunk.ID, articleID, chunk.Index, chunk.Content, createdAt, now); err != nil {
				return fmt.Errorf("saving chunk: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteChunks removes every chunk of an article.
func (s *chunkStore) DeleteChunks(ctx context.Context, articleID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE article_id = ?", articleID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// GetChunks returns the chunks of an article ordered by index.
func (s *chunkStore) GetChunks(ctx context.Context, articleID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, article_id, idx, content, created_at, updated_at
		FROM chunks WHERE article_id = ?
		ORDER BY idx
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// GetChunksByIDs returns the chunks that exist among ids.
func (s *chunkStore) GetChunksByIDs(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	found := make(map[string]domain.Chunk, len(ids))
	for start := 0; start < len(ids); start += maxParams {
		end := start + maxParams
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.store.db.QueryContext(ctx, `
			SELECT id, article_id, idx, content, created_at, updated_at
			FROM chunks WHERE id IN (`+placeholders(len(batch))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying chunks by id: %w", err)
		}
		for rows.Next() {
			chunk, err := scanChunk(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			found[chunk.ID] = *chunk
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating chunks: %w", err)
		}
	}
	return found, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var createdAt, updatedAt string
	if err := row.Scan(&chunk.ID, &chunk.ArticleID, &chunk.Index, &chunk.Content, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.CreatedAt = parseTime(createdAt)
	chunk.UpdatedAt = parseTime(updatedAt)
	return &chunk, nil
}
