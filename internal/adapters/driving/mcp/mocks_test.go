package mcp

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result     *domain.RetrievalResult
	err        error
	lastQuery  string
	lastBudget domain.Budget
}

func (m *mockRetrievalService) Retrieve(_ context.Context, query string, budget domain.Budget) (*domain.RetrievalResult, error) {
	m.lastQuery = query
	m.lastBudget = budget
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.RetrievalResult{
			Characters: []domain.CardHit{},
			Settings:   []domain.CardHit{},
			Passages:   []domain.Passage{},
		}, nil
	}
	return m.result, nil
}

// mockArticleService is a mock implementation of driving.ArticleService.
type mockArticleService struct {
	ids     []string
	article *domain.Article
	chunks  []domain.Chunk
	err     error
}

func (m *mockArticleService) Put(_ context.Context, _, _ string) error {
	return m.err
}

func (m *mockArticleService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockArticleService) Get(_ context.Context, _ string) (*domain.Article, error) {
	return m.article, m.err
}

func (m *mockArticleService) List(_ context.Context) ([]string, error) {
	return m.ids, m.err
}

func (m *mockArticleService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	status domain.IndexStatus
}

func (m *mockIndexService) EnqueueArticleForIndexing(_ string) {}

func (m *mockIndexService) HandleDeletedArticle(_ context.Context, _ string) error {
	return nil
}

func (m *mockIndexService) Rebuild(_ context.Context, _ domain.Collection) (int, error) {
	return 0, nil
}

func (m *mockIndexService) Status() domain.IndexStatus {
	return m.status
}

func (m *mockIndexService) Wait(_ context.Context) error {
	return nil
}
