package driven

import (
	"context"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// EntityStore persists entity cards.
type EntityStore interface {
	// UpsertCard stores or replaces a card by ID and records the source
	// article as a claimant of that ID. When a different article already
	// holds the ID the stored card is left alone and a *domain.CardHeldError
	// is returned.
	UpsertCard(ctx context.Context, card domain.EntityCard) error

	// GetCard returns a card by ID or domain.ErrNotFound.
	GetCard(ctx context.Context, id string) (*domain.EntityCard, error)

	// GetBySource returns the card extracted from an article.
	// Returns nil and no error if the article has no card.
	GetBySource(ctx context.Context, articleID string) (*domain.EntityCard, error)

	// ReleaseCard drops the article's claim. If the article held a card the
	// card is deleted and next is the earliest remaining claimant of that
	// ID, which should be re-indexed to take it over. Releasing an article
	// with no claim is not an error.
	ReleaseCard(ctx context.Context, articleID string) (next string, err error)

	// ListCards returns every card ordered by ID.
	ListCards(ctx context.Context) ([]domain.EntityCard, error)
}
