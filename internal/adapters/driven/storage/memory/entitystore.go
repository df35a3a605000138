package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure EntityStore implements the interface.
var _ driven.EntityStore = (*EntityStore)(nil)

// EntityStore is an in-memory implementation of driven.EntityStore.
type EntityStore struct {
	mu     sync.RWMutex
	cards  map[string]domain.EntityCard
	claims map[string]claim // by article ID
	seq    uint64
}

type claim struct {
	cardID string
	seq    uint64
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		cards:  make(map[string]domain.EntityCard),
		claims: make(map[string]claim),
	}
}

// UpsertCard records the claim and stores the card unless another article
// holds its ID.
func (s *EntityStore) UpsertCard(_ context.Context, card domain.EntityCard) error {
	if card.ID == "" || card.SourceArticleID == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.cards {
		if existing.SourceArticleID == card.SourceArticleID && id != card.ID {
			delete(s.cards, id)
		}
	}
	if c, ok := s.claims[card.SourceArticleID]; !ok || c.cardID != card.ID {
		s.seq++
		s.claims[card.SourceArticleID] = claim{cardID: card.ID, seq: s.seq}
	}

	now := time.Now().UTC()
	if prev, ok := s.cards[card.ID]; ok {
		if prev.SourceArticleID != card.SourceArticleID {
			return &domain.CardHeldError{CardID: card.ID, Holder: prev.SourceArticleID}
		}
		card.CreatedAt = prev.CreatedAt
	} else if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	s.cards[card.ID] = card
	return nil
}

// GetCard returns a card by ID.
func (s *EntityStore) GetCard(_ context.Context, id string) (*domain.EntityCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &card, nil
}

// GetBySource returns the card extracted from an article, or nil.
func (s *EntityStore) GetBySource(_ context.Context, articleID string) (*domain.EntityCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.cards {
		card := s.cards[id]
		if card.SourceArticleID == articleID {
			return &card, nil
		}
	}
	return nil, nil
}

// ReleaseCard drops the article's claim and, if it held a card, deletes
// the card and returns the earliest remaining claimant.
func (s *EntityStore) ReleaseCard(_ context.Context, articleID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, articleID)

	held := ""
	for id, card := range s.cards {
		if card.SourceArticleID == articleID {
			held = id
			break
		}
	}
	if held == "" {
		return "", nil
	}
	delete(s.cards, held)

	next, nextSeq := "", uint64(0)
	for article, c := range s.claims {
		if c.cardID != held {
			continue
		}
		if next == "" || c.seq < nextSeq {
			next, nextSeq = article, c.seq
		}
	}
	return next, nil
}

// ListCards returns every card ordered by ID.
func (s *EntityStore) ListCards(_ context.Context) ([]domain.EntityCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cards := make([]domain.EntityCard, 0, len(s.cards))
	for id := range s.cards {
		cards = append(cards, s.cards[id])
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}
