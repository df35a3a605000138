package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string][]domain.Chunk),
	}
}

// ReplaceChunks swaps every chunk of an article.
// CreatedAt survives for chunk IDs that were already present.
func (s *ChunkStore) ReplaceChunks(_ context.Context, articleID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make(map[string]time.Time, len(s.chunks[articleID]))
	for _, c := range s.chunks[articleID] {
		created[c.ID] = c.CreatedAt
	}

	if len(chunks) == 0 {
		delete(s.chunks, articleID)
		return nil
	}

	now := time.Now().UTC()
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.ArticleID = articleID
		if t, ok := created[c.ID]; ok {
			c.CreatedAt = t
		} else if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		stored[i] = c
	}
	s.chunks[articleID] = stored
	return nil
}

// DeleteChunks removes every chunk of an article.
func (s *ChunkStore) DeleteChunks(_ context.Context, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, articleID)
	return nil
}

// GetChunks returns the chunks of an article ordered by index.
func (s *ChunkStore) GetChunks(_ context.Context, articleID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[articleID]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// GetChunksByIDs returns the chunks that exist among ids.
func (s *ChunkStore) GetChunksByIDs(_ context.Context, ids []string) (map[string]domain.Chunk, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]domain.Chunk, len(ids))
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if want[c.ID] {
				found[c.ID] = c
			}
		}
	}
	return found, nil
}
