// Package memory provides a brute-force in-memory vector store.
// It mirrors the sqlitevec semantics exactly and backs tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

type collection struct {
	dim     int
	entries map[string]domain.VectorEntry
}

// Store is an in-memory driven.VectorStore using exact L2 distance.
type Store struct {
	mu          sync.RWMutex
	collections map[domain.Collection]*collection
}

var _ driven.VectorStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[domain.Collection]*collection)}
}

// EnsureReady fixes the dimension on first use and rejects a different one later.
func (s *Store) EnsureReady(_ context.Context, c domain.Collection, dim int) error {
	if err := validCollection(c); err != nil {
		return err
	}
	if dim <= 0 {
		return domain.NewError(domain.CodeInvalidArgument, "ensure ready",
			fmt.Errorf("%w: dimension %d", domain.ErrInvalidArgument, dim))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[c]; ok {
		if col.dim != dim {
			return &domain.ConflictError{Collection: c, Have: col.dim, Want: dim}
		}
		return nil
	}
	s.collections[c] = &collection{dim: dim, entries: make(map[string]domain.VectorEntry)}
	return nil
}

// Dimension returns the collection dimension, or 0.
func (s *Store) Dimension(_ context.Context, c domain.Collection) (int, error) {
	if err := validCollection(c); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col, ok := s.collections[c]; ok {
		return col.dim, nil
	}
	return 0, nil
}

// Upsert replaces entries by key.
func (s *Store) Upsert(_ context.Context, c domain.Collection, entries []domain.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.writable(c, "upsert", entries)
	if err != nil || col == nil {
		return err
	}
	for _, e := range entries {
		col.entries[e.Key] = clone(e)
	}
	return nil
}

// ReplaceForOwner swaps the owner's entries for the new set.
func (s *Store) ReplaceForOwner(_ context.Context, c domain.Collection, owner string, entries []domain.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.writable(c, "replace for owner", entries)
	if err != nil || col == nil {
		return err
	}
	for key, e := range col.entries {
		if e.Group == owner {
			delete(col.entries, key)
		}
	}
	for _, e := range entries {
		e.Group = owner
		col.entries[e.Key] = clone(e)
	}
	return nil
}

// writable validates a write. A nil collection with a nil error means there is nothing to do.
func (s *Store) writable(c domain.Collection, op string, entries []domain.VectorEntry) (*collection, error) {
	if err := validCollection(c); err != nil {
		return nil, err
	}
	col, ok := s.collections[c]
	if !ok {
		if len(entries) == 0 {
			return nil, nil
		}
		return nil, domain.NewError(domain.CodeInvalidArgument, op,
			fmt.Errorf("%w: collection %s is not initialised", domain.ErrInvalidArgument, c))
	}
	for _, e := range entries {
		if e.Key == "" {
			return nil, domain.NewError(domain.CodeInvalidArgument, op,
				fmt.Errorf("%w: empty vector key", domain.ErrInvalidArgument))
		}
		if len(e.Embedding) != col.dim {
			return nil, &domain.ConflictError{Collection: c, Have: col.dim, Want: len(e.Embedding)}
		}
	}
	return col, nil
}

// Delete removes entries by key.
func (s *Store) Delete(_ context.Context, c domain.Collection, keys []string) error {
	if err := validCollection(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[c]; ok {
		for _, key := range keys {
			delete(col.entries, key)
		}
	}
	return nil
}

// DeleteByOwner removes every entry in a group.
func (s *Store) DeleteByOwner(_ context.Context, c domain.Collection, owner string) error {
	if err := validCollection(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[c]; ok {
		for key, e := range col.entries {
			if e.Group == owner {
				delete(col.entries, key)
			}
		}
	}
	return nil
}

// QuerySimilar ranks every entry by L2 distance.
func (s *Store) QuerySimilar(_ context.Context, c domain.Collection, vector []float32, q domain.SimilarityQuery) ([]domain.VectorHit, error) {
	if err := validCollection(c); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[c]
	if !ok {
		return nil, nil
	}
	if len(vector) != col.dim {
		return nil, &domain.ConflictError{Collection: c, Have: col.dim, Want: len(vector)}
	}

	include := toSet(q.Groups)
	exclude := toSet(q.ExcludeGroups)

	hits := make([]domain.VectorHit, 0, len(col.entries))
	for _, e := range col.entries {
		if len(include) > 0 && !include[e.Group] {
			continue
		}
		if exclude[e.Group] {
			continue
		}
		d := domain.L2Distance(vector, e.Embedding)
		if q.HasMaxDistance && d > q.MaxDistance {
			continue
		}
		hits = append(hits, domain.VectorHit{Key: e.Key, Group: e.Group, Distance: d})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Key < hits[j].Key
	})

	if q.Offset >= len(hits) {
		return []domain.VectorHit{}, nil
	}
	end := q.Offset + q.TopK
	if end > len(hits) {
		end = len(hits)
	}
	return hits[q.Offset:end], nil
}

// Reset forgets the collection and its dimension.
func (s *Store) Reset(_ context.Context, c domain.Collection) error {
	if err := validCollection(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, c)
	return nil
}

// Count returns the number of entries in the collection.
func (s *Store) Count(_ context.Context, c domain.Collection) (int, error) {
	if err := validCollection(c); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col, ok := s.collections[c]; ok {
		return len(col.entries), nil
	}
	return 0, nil
}

// Keys returns the keys of a collection in sorted order.
func (s *Store) Keys(c domain.Collection) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[c]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(col.entries))
	for k := range col.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a stored entry.
func (s *Store) Get(c domain.Collection, key string) (domain.VectorEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[c]
	if !ok {
		return domain.VectorEntry{}, false
	}
	e, ok := col.entries[key]
	return e, ok
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func validCollection(c domain.Collection) error {
	if !c.IsValid() {
		return domain.NewError(domain.CodeInvalidArgument, "vector store",
			fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, c))
	}
	return nil
}

func clone(e domain.VectorEntry) domain.VectorEntry {
	e.Embedding = append([]float32(nil), e.Embedding...)
	return e
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
