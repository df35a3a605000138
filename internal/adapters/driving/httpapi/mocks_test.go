package httpapi

import (
	"context"
	"sync"

	"github.com/custodia-labs/quill/internal/core/domain"
)

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
	if m.result != nil {
		return m.result, nil
	}
	return &domain.RetrievalResult{
		Characters: []domain.CardHit{},
		Settings:   []domain.CardHit{},
		Passages:   []domain.Passage{},
	}, nil
}

type mockArticleService struct {
	mu       sync.Mutex
	articles map[string]string
	err      error
}

func newMockArticleService() *mockArticleService {
	return &mockArticleService{articles: map[string]string{}}
}

func (m *mockArticleService) Put(_ context.Context, id, content string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[id] = content
	return nil
}

func (m *mockArticleService) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.articles, id)
	return nil
}

func (m *mockArticleService) Get(_ context.Context, id string) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.articles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Article{ID: id, Content: content}, nil
}

func (m *mockArticleService) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.articles))
	for id := range m.articles {
		ids = append(ids, id)
	}
	return ids, m.err
}

func (m *mockArticleService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

type mockIndexService struct {
	status     domain.IndexStatus
	enqueued   []string
	rebuilt    []domain.Collection
	rebuildErr error
}

func (m *mockIndexService) EnqueueArticleForIndexing(id string) {
	m.enqueued = append(m.enqueued, id)
}

func (m *mockIndexService) HandleDeletedArticle(_ context.Context, _ string) error {
	return nil
}

func (m *mockIndexService) Rebuild(_ context.Context, c domain.Collection) (int, error) {
	if m.rebuildErr != nil {
		return 0, m.rebuildErr
	}
	if !c.IsValid() {
		return 0, domain.NewError(domain.CodeInvalidArgument, "rebuild", domain.ErrInvalidArgument)
	}
	m.rebuilt = append(m.rebuilt, c)
	return 2, nil
}

func (m *mockIndexService) Status() domain.IndexStatus {
	return m.status
}

func (m *mockIndexService) Wait(_ context.Context) error {
	return nil
}
