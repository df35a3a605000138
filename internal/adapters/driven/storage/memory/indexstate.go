package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure IndexStateStore implements the interface.
var _ driven.IndexStateStore = (*IndexStateStore)(nil)

// IndexStateStore is an in-memory implementation of driven.IndexStateStore.
type IndexStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.ArticleIndexState
}

// NewIndexStateStore creates a new in-memory index state store.
func NewIndexStateStore() *IndexStateStore {
	return &IndexStateStore{
		states: make(map[string]domain.ArticleIndexState),
	}
}

// SaveState stores or replaces the state of an article.
func (s *IndexStateStore) SaveState(_ context.Context, state domain.ArticleIndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ArticleID] = state
	return nil
}

// GetState returns the state of an article, or nil.
func (s *IndexStateStore) GetState(_ context.Context, articleID string) (*domain.ArticleIndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[articleID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// DeleteState removes the state of an article.
func (s *IndexStateStore) DeleteState(_ context.Context, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, articleID)
	return nil
}

// ListStates returns every recorded state ordered by article ID.
func (s *IndexStateStore) ListStates(_ context.Context) ([]domain.ArticleIndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]domain.ArticleIndexState, 0, len(s.states))
	for id := range s.states {
		states = append(states, s.states[id])
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ArticleID < states[j].ArticleID })
	return states, nil
}
