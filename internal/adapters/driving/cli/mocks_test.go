package cli

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/worker"
	"github.com/custodia-labs/quill/internal/core/domain"
)

type mockArticleService struct {
	mu       sync.Mutex
	articles map[string]string
	chunks   map[string][]domain.Chunk
	err      error
	deleted  []string

	// index, when set, is notified of every put like the real service does.
	index *mockIndexService
}

func newMockArticleService() *mockArticleService {
	return &mockArticleService{
		articles: map[string]string{},
		chunks:   map[string][]domain.Chunk{},
	}
}

func (m *mockArticleService) Put(_ context.Context, id, content string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.articles[id] = content
	m.mu.Unlock()
	if m.index != nil {
		m.index.EnqueueArticleForIndexing(id)
	}
	return nil
}

func (m *mockArticleService) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.articles, id)
	m.deleted = append(m.deleted, id)
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
	sort.Strings(ids)
	return ids, m.err
}

func (m *mockArticleService) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[id], nil
}

func (m *mockArticleService) content(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.articles[id]
	return c, ok
}

// mockIndexService counts every enqueued id as processed when Wait is called,
// or as failed when failWith is set.
type mockIndexService struct {
	mu         sync.Mutex
	status     domain.IndexStatus
	enqueued   []string
	pending    int
	failWith   string
	rebuilt    []domain.Collection
	rebuildN   int
	rebuildErr error
	waits      int
}

func (m *mockIndexService) EnqueueArticleForIndexing(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, id)
	m.pending++
}

func (m *mockIndexService) HandleDeletedArticle(_ context.Context, _ string) error {
	return nil
}

func (m *mockIndexService) Rebuild(_ context.Context, c domain.Collection) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rebuildErr != nil {
		return 0, m.rebuildErr
	}
	m.rebuilt = append(m.rebuilt, c)
	m.pending += m.rebuildN
	return m.rebuildN, nil
}

func (m *mockIndexService) Status() domain.IndexStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockIndexService) Wait(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits++
	if m.failWith != "" {
		m.status.Failed += m.pending
		m.status.LastError = m.failWith
	} else {
		m.status.Processed += m.pending
	}
	m.pending = 0
	return nil
}

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

type mockReconciler struct {
	report *domain.ReconcileReport
	err    error
	calls  int
}

func (m *mockReconciler) Reconcile(_ context.Context) (*domain.ReconcileReport, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.report == nil {
		return &domain.ReconcileReport{}, nil
	}
	return m.report, nil
}

type mockWorker struct {
	stats   worker.Stats
	pingErr error
	pinged  int
}

func (m *mockWorker) Stats() worker.Stats {
	return m.stats
}

func (m *mockWorker) Ping(context.Context, string) error {
	m.pinged++
	return m.pingErr
}

type mockScheduler struct {
	runs []domain.ReconcileRun
	err  error
}

func (m *mockScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error { return nil }

func (m *mockScheduler) History(_ context.Context, limit int) ([]domain.ReconcileRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

type testServices struct {
	articles   *mockArticleService
	index      *mockIndexService
	retrieval  *mockRetrievalService
	reconciler *mockReconciler
	worker     *mockWorker
}
