package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// ==================== Article Store ====================

// articleStore implements driven.ArticleStore.
type articleStore struct {
	store *Store
}

var _ driven.ArticleStore = (*articleStore)(nil)

// Get retrieves an article by ID.
func (s *articleStore) Get(ctx context.Context, id string) (*domain.Article, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, content, updated_at FROM articles WHERE id = ?
	`, id)

	var article domain.Article
	var updatedAt string
	if err := row.Scan(&article.ID, &article.Content, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning article: %w", err)
	}
	article.UpdatedAt = parseTime(updatedAt)
	return &article, nil
}

// Put stores or replaces an article.
func (s *articleStore) Put(ctx context.Context, article domain.Article) error {
	if article.ID == "" {
		return domain.ErrInvalidArgument
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO articles (id, content, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`, article.ID, article.Content, formatTime(article.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving article: %w", err)
	}
	return nil
}

// Delete removes an article.
func (s *articleStore) Delete(ctx context.Context, id string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM articles WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting article: %w", err)
	}
	return nil
}

// List returns every article ID in ascending order.
func (s *articleStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT id FROM articles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}
	return ids, nil
}

// ==================== Keyword Search ====================

// KeywordMode selects how user text is turned into an FTS5 query.
type KeywordMode string

const (
	// KeywordModeRaw passes the query to FTS5 unchanged; operators work and
	// malformed input surfaces as domain.ErrQuerySyntax.
	KeywordModeRaw KeywordMode = "raw"

	// KeywordModeTerms quotes every word and ORs them together.
	KeywordModeTerms KeywordMode = "terms"
)

// IsValid returns true if the mode is recognised.
func (m KeywordMode) IsValid() bool {
	return m == KeywordModeRaw || m == KeywordModeTerms
}

// keywordSearch implements driven.KeywordSearch over articles_fts.
type keywordSearch struct {
	store *Store
	mode  KeywordMode
}

var _ driven.KeywordSearch = (*keywordSearch)(nil)

// SearchArticles ranks articles with bm25. Scores are negated so larger is better.
func (k *keywordSearch) SearchArticles(ctx context.Context, query string, limit int) ([]driven.KeywordHit, error) {
	match := strings.TrimSpace(query)
	if k.mode == KeywordModeTerms {
		match = termsQuery(query)
	}
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := k.store.db.QueryContext(ctx, `
		SELECT article_id, bm25(articles_fts)
		FROM articles_fts
		WHERE articles_fts MATCH ?
		ORDER BY bm25(articles_fts), article_id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, classifySearchError(err)
	}
	defer rows.Close()

	var hits []driven.KeywordHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.KeywordHit
		var rank float64
		if err := rows.Scan(&hit.ArticleID, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySearchError(err)
	}
	return hits, nil
}

// termsQuery builds `"a" OR "b"` from the words of query.
func termsQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	quoted := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// classifySearchError maps FTS5 query parse failures to domain.ErrQuerySyntax.
func classifySearchError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"fts5", "syntax error", "unterminated string", "no such column", "malformed match"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", domain.ErrQuerySyntax, err)
		}
	}
	return fmt.Errorf("searching articles: %w", err)
}
