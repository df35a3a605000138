package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure ArticleStore implements the interfaces.
var (
	_ driven.ArticleStore  = (*ArticleStore)(nil)
	_ driven.KeywordSearch = (*ArticleStore)(nil)
)

// ArticleStore is an in-memory implementation of driven.ArticleStore.
// Its keyword search ranks by raw term frequency.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[string]domain.Article

	// SearchErr, when set, is returned by SearchArticles.
	SearchErr error
}

// NewArticleStore creates a new in-memory article store.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		articles: make(map[string]domain.Article),
	}
}

// Get retrieves an article by ID.
func (s *ArticleStore) Get(_ context.Context, id string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &article, nil
}

// Put stores or replaces an article.
func (s *ArticleStore) Put(_ context.Context, article domain.Article) error {
	if article.ID == "" {
		return domain.ErrInvalidArgument
	}
	if article.UpdatedAt.IsZero() {
		article.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[article.ID] = article
	return nil
}

// Delete removes an article.
func (s *ArticleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.articles, id)
	return nil
}

// List returns every article ID in ascending order.
func (s *ArticleStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.articles))
	for id := range s.articles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SearchArticles ranks articles by how often the query terms occur.
func (s *ArticleStore) SearchArticles(_ context.Context, query string, limit int) ([]driven.KeywordHit, error) {
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []driven.KeywordHit
	for id := range s.articles {
		article := s.articles[id]
		content := strings.ToLower(article.Content)
		var score float64
		for _, term := range terms {
			score += float64(strings.Count(content, term))
		}
		if score > 0 {
			hits = append(hits, driven.KeywordHit{ArticleID: id, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ArticleID < hits[j].ArticleID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}
