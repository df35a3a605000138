package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// entityStore implements driven.EntityStore.
type entityStore struct {
	store *Store
}

var _ driven.EntityStore = (*entityStore)(nil)

const entityColumns = "id, type, name, aliases, content, source_article_id, created_at, updated_at"

// UpsertCard records the source article's claim on card.ID, removes any
// other card the article held, and stores the card unless a different
// article already holds that ID.
func (s *entityStore) UpsertCard(ctx context.Context, card domain.EntityCard) error {
	if card.ID == "" || card.SourceArticleID == "" || !card.Type.IsValid() {
		return domain.ErrInvalidArgument
	}

	aliases := card.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("marshalling aliases: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entity_cards WHERE source_article_id = ? AND id != ?
	`, card.SourceArticleID, card.ID); err != nil {
		return fmt.Errorf("removing superseded card: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO card_claims (article_id, card_id, claimed_at) VALUES (?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			card_id = excluded.card_id,
			claimed_at = CASE WHEN card_claims.card_id = excluded.card_id
				THEN card_claims.claimed_at ELSE excluded.claimed_at END
	`, card.SourceArticleID, card.ID, now); err != nil {
		return fmt.Errorf("recording card claim: %w", err)
	}

	var holder string
	err = tx.QueryRowContext(ctx, "SELECT source_article_id FROM entity_cards WHERE id = ?", card.ID).Scan(&holder)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("loading card holder: %w", err)
	case holder != card.SourceArticleID:
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return &domain.CardHeldError{CardID: card.ID, Holder: holder}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_cards (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			aliases = excluded.aliases,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, card.ID, string(card.Type), card.Name, string(aliasesJSON), card.Content,
		card.SourceArticleID, formatTime(card.CreatedAt), now); err != nil {
		return fmt.Errorf("saving entity card: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetCard returns a card by ID.
func (s *entityStore) GetCard(ctx context.Context, id string) (*domain.EntityCard, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entity_cards WHERE id = ?", id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return card, err
}

// GetBySource returns the card extracted from an article.
// Returns nil and no error if the article has no card.
func (s *entityStore) GetBySource(ctx context.Context, articleID string) (*domain.EntityCard, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entity_cards WHERE source_article_id = ?", articleID)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Per interface: return nil and no error if not found
	}
	return card, err
}

// ReleaseCard drops the article's claim and, if it held a card, deletes
// the card and returns the earliest remaining claimant.
func (s *entityStore) ReleaseCard(ctx context.Context, articleID string) (string, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM card_claims WHERE article_id = ?", articleID); err != nil {
		return "", fmt.Errorf("deleting card claim: %w", err)
	}

	var cardID string
	err = tx.QueryRowContext(ctx, "SELECT id FROM entity_cards WHERE source_article_id = ?", articleID).Scan(&cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tx.Commit()
	}
	if err != nil {
		return "", fmt.Errorf("loading held card: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entity_cards WHERE id = ?", cardID); err != nil {
		return "", fmt.Errorf("deleting entity card: %w", err)
	}

	var next string
	err = tx.QueryRowContext(ctx, `
		SELECT article_id FROM card_claims WHERE card_id = ?
		ORDER BY claimed_at, article_id LIMIT 1
	`, cardID).Scan(&next)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("loading next claimant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	return next, nil
}

// ListCards returns every card ordered by ID.
func (s *entityStore) ListCards(ctx context.Context) ([]domain.EntityCard, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT "+entityColumns+" FROM entity_cards ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying entity cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.EntityCard{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity cards: %w", err)
	}
	return cards, nil
}

// scanCard scans one card. A missing row wraps sql.ErrNoRows.
func scanCard(row rowScanner) (*domain.EntityCard, error) {
	var card domain.EntityCard
	var entityType, aliasesJSON, createdAt, updatedAt string
	if err := row.Scan(&card.ID, &entityType, &card.Name, &aliasesJSON, &card.Content,
		&card.SourceArticleID, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning entity card: %w", err)
	}

	t, ok := domain.ParseEntityType(entityType)
	if !ok {
		return nil, fmt.Errorf("entity card %s: unknown type %q", card.ID, entityType)
	}
	card.Type = t

	if err := json.Unmarshal([]byte(aliasesJSON), &card.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshaling aliases: %w", err)
	}
	card.CreatedAt = parseTime(createdAt)
	card.UpdatedAt = parseTime(updatedAt)
	return &card, nil
}
