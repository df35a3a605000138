package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
)

// Ensure ArticleService implements the interface.
var _ driving.ArticleService = (*ArticleService)(nil)

// ArticleService stores articles and keeps the indexer informed of changes.
type ArticleService struct {
	articles driven.ArticleStore
	chunks   driven.ChunkStore
	indexer  driving.IndexService
}

// NewArticleService creates a new article service.
func NewArticleService(
	articles driven.ArticleStore,
	chunks driven.ChunkStore,
	indexer driving.IndexService,
) *ArticleService {
	return &ArticleService{
		articles: articles,
		chunks:   chunks,
		indexer:  indexer,
	}
}

// Put stores an article and enqueues it for indexing.
func (s *ArticleService) Put(ctx context.Context, id, content string) error {
	if err := validateArticleID(id); err != nil {
		return err
	}

	article := domain.Article{ID: id, Content: content, UpdatedAt: time.Now()}
	if err := s.articles.Put(ctx, article); err != nil {
		return fmt.Errorf("store article %s: %w", id, err)
	}
	logger.Debug("Articles: stored %s (%d bytes)", id, len(content))

	s.indexer.EnqueueArticleForIndexing(id)
	return nil
}

// Delete removes an article and its derived records. Deleting a missing article is not an error.
func (s *ArticleService) Delete(ctx context.Context, id string) error {
	if err := validateArticleID(id); err != nil {
		return err
	}

	if err := s.articles.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete article %s: %w", id, err)
	}
	return s.indexer.HandleDeletedArticle(ctx, id)
}

// Get retrieves an article by ID.
func (s *ArticleService) Get(ctx context.Context, id string) (*domain.Article, error) {
	return s.articles.Get(ctx, id)
}

// List returns every article ID.
func (s *ArticleService) List(ctx context.Context) ([]string, error) {
	return s.articles.List(ctx)
}

// Chunks returns the indexed chunks of an article.
func (s *ArticleService) Chunks(ctx context.Context, id string) ([]domain.Chunk, error) {
	// Verify article exists
	if _, err := s.articles.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.chunks.GetChunks(ctx, id)
}

func validateArticleID(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewError(domain.CodeInvalidArgument, "article",
			fmt.Errorf("%w: article id is empty", domain.ErrInvalidArgument))
	}
	return nil
}
